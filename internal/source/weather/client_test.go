package weather

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/evmartinez/airwatch/internal/config"
	"github.com/evmartinez/airwatch/internal/model"
)

// archiveHandler serves a minimal archive payload for any requested range.
func archiveHandler(t *testing.T, requests *[]string, mu *sync.Mutex) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		start := r.URL.Query().Get("start_date")
		end := r.URL.Query().Get("end_date")
		mu.Lock()
		*requests = append(*requests, start+".."+end)
		mu.Unlock()

		startDay, err := time.Parse("2006-01-02", start)
		if err != nil {
			t.Errorf("bad start_date %q", start)
		}
		endDay, err := time.Parse("2006-01-02", end)
		if err != nil {
			t.Errorf("bad end_date %q", end)
		}

		var days, temps []string
		for d := startDay; !d.After(endDay); d = d.AddDate(0, 0, 1) {
			days = append(days, fmt.Sprintf("%q", d.Format("2006-01-02")))
			temps = append(temps, "15.5")
		}
		fmt.Fprintf(w, `{"daily":{"time":[%s],"temperature_2m_mean":[%s]}}`,
			strings.Join(days, ","), strings.Join(temps, ","))
	}
}

func testConfig(baseURL string, chunkDays int, allowPartial bool) config.Weather {
	return config.Weather{
		BaseURL:      baseURL,
		Timeout:      5 * time.Second,
		ChunkDays:    chunkDays,
		AllowPartial: allowPartial,
	}
}

func TestFetchSingleChunk(t *testing.T) {
	var mu sync.Mutex
	var requests []string
	srv := httptest.NewServer(archiveHandler(t, &requests, &mu))
	defer srv.Close()

	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC)
	client := New(testConfig(srv.URL, 366, false), start, end, 35.994, -78.8986)

	res, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(requests) != 1 {
		t.Errorf("expected 1 upstream request, got %d: %v", len(requests), requests)
	}
	if len(res.Samples) != 10 {
		t.Fatalf("expected 10 samples, got %d", len(res.Samples))
	}
	first := res.Samples[0]
	if !first.ObservedAt.Equal(start) {
		t.Errorf("expected first sample at %s, got %s", start, first.ObservedAt)
	}
	if first.Temperature == nil || *first.Temperature != 15.5 {
		t.Errorf("expected temperature 15.5, got %v", first.Temperature)
	}
	if first.Humidity != nil {
		t.Errorf("omitted metric should be nil, got %v", first.Humidity)
	}
}

func TestFetchChunksLongRanges(t *testing.T) {
	var mu sync.Mutex
	var requests []string
	srv := httptest.NewServer(archiveHandler(t, &requests, &mu))
	defer srv.Close()

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC)
	client := New(testConfig(srv.URL, 366, false), start, end, 35.994, -78.8986)

	res, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(requests) != 3 {
		t.Errorf("three years should take 3 chunked requests, got %d: %v", len(requests), requests)
	}
	// 2020 is a leap year: 366 + 365 + 365 days.
	if len(res.Samples) != 1096 {
		t.Errorf("expected 1096 samples, got %d", len(res.Samples))
	}
	for i := 1; i < len(res.Samples); i++ {
		if !res.Samples[i].ObservedAt.After(res.Samples[i-1].ObservedAt) {
			t.Fatalf("samples out of chronological order at index %d", i)
		}
	}
}

func TestFetchChunkFailureFailsWholeCall(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"daily":{"time":["2020-01-01"],"temperature_2m_mean":[1]}}`)
	}))
	defer srv.Close()

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC)
	client := New(testConfig(srv.URL, 366, false), start, end, 0, 0)

	_, err := client.Fetch(context.Background())
	if !errors.Is(err, model.ErrSourceUnavailable) {
		t.Errorf("a failed chunk must fail the whole call, got %v", err)
	}
}

func TestFetchPartialResultsReportGaps(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"daily":{"time":["2020-01-01"],"temperature_2m_mean":[1]}}`)
	}))
	defer srv.Close()

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC)
	client := New(testConfig(srv.URL, 366, true), start, end, 0, 0)

	res, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("partial results permitted, got error: %v", err)
	}
	if len(res.Gaps) != 1 {
		t.Fatalf("expected 1 reported gap, got %v", res.Gaps)
	}
	if !strings.Contains(res.Gaps[0], "2021-01-01") {
		t.Errorf("gap should name the missing range, got %q", res.Gaps[0])
	}
	if len(res.Samples) == 0 {
		t.Error("the successful chunks should still yield samples")
	}
}

func TestFetchInvalidRange(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	client := New(testConfig("http://unused", 366, false), start, start.AddDate(0, 0, -1), 0, 0)
	if _, err := client.Fetch(context.Background()); err == nil {
		t.Error("end before start should error")
	}

	client = New(testConfig("http://unused", 366, false), start, start, 91, 0)
	if _, err := client.Fetch(context.Background()); err == nil {
		t.Error("out-of-range coordinates should error")
	}
}
