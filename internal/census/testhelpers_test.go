package census

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/sells-group/market-stats/internal/fetcher"
)

// stubFetcher answers every URL through fn and records the requests.
type stubFetcher struct {
	mu   sync.Mutex
	urls []string
	fn   func(url string) (*fetcher.RawResponse, error)
}

func (s *stubFetcher) Fetch(_ context.Context, url string) (*fetcher.RawResponse, error) {
	s.mu.Lock()
	s.urls = append(s.urls, url)
	s.mu.Unlock()
	return s.fn(url)
}

// table renders rows of name->value as the source's header/value array,
// with columns in shuffled-looking (sorted descending) order.
func table(rows ...map[string]string) []byte {
	if len(rows) == 0 {
		return []byte("[]")
	}
	var headers []string
	for h := range rows[0] {
		headers = append(headers, h)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(headers)))

	out := [][]string{headers}
	for _, r := range rows {
		vals := make([]string, len(headers))
		for i, h := range headers {
			vals[i] = r[h]
		}
		out = append(out, vals)
	}
	b, _ := json.Marshal(out)
	return b
}

// fullRow returns a row with every requested variable set to "1" except the
// overrides given.
func fullRow(overrides map[string]string) map[string]string {
	row := make(map[string]string)
	for _, v := range Variables() {
		row[v] = "1"
	}
	row["NAME"] = "Test Area"
	for k, v := range overrides {
		row[k] = v
	}
	return row
}
