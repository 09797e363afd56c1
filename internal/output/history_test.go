package output

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestAppendHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "history.jsonl")
	r := sampleReport(t)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := AppendHistory(path, r); err != nil {
				t.Errorf("AppendHistory() error = %v", err)
			}
		}()
	}
	wg.Wait()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var got Report
		if err := json.Unmarshal(scanner.Bytes(), &got); err != nil {
			t.Fatalf("line %d is not a report: %v", lines, err)
		}
		if got.RunID != r.RunID || len(got.Trials) != 3 {
			t.Errorf("line %d = %+v", lines, got)
		}
		lines++
	}
	if err := scanner.Err(); err != nil {
		t.Fatal(err)
	}
	if lines != 5 {
		t.Errorf("history has %d lines, want 5", lines)
	}
	if _, err := os.Stat(path + ".lock"); err != nil {
		t.Errorf("lock file missing: %v", err)
	}
}
