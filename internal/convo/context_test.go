package convo

import (
	"fmt"
	"sync"
	"testing"

	"hearth/internal/domain"
)

func entry(text string) domain.ContextEntry {
	return domain.ContextEntry{
		InputText: text,
		Intent:    domain.Intent{Type: domain.IntentDeviceControl, Category: "turn_on"},
	}
}

func TestAppendAndHistory(t *testing.T) {
	s := NewStore()

	s.Append("user-1", entry("打开灯"))
	s.Append("user-1", entry("关闭灯"))
	s.Append("user-2", entry("好热啊"))

	got := s.History("user-1")
	if len(got) != 2 {
		t.Fatalf("history len = %d, want 2", len(got))
	}
	if got[0].InputText != "打开灯" || got[1].InputText != "关闭灯" {
		t.Fatalf("history order = %q, %q", got[0].InputText, got[1].InputText)
	}
	if got[0].Timestamp.IsZero() {
		t.Fatalf("timestamp not set on append")
	}
	if other := s.History("user-2"); len(other) != 1 {
		t.Fatalf("user-2 history len = %d, want 1", len(other))
	}
}

func TestHistoryCapped(t *testing.T) {
	s := NewStore()
	for i := 0; i < 15; i++ {
		s.Append("user-1", entry(fmt.Sprintf("第%d句", i)))
	}

	got := s.History("user-1")
	if len(got) != defaultCapacity {
		t.Fatalf("history len = %d, want %d", len(got), defaultCapacity)
	}
	if got[0].InputText != "第5句" {
		t.Fatalf("oldest kept = %q, want 第5句", got[0].InputText)
	}
	last, ok := s.Last("user-1")
	if !ok || last.InputText != "第14句" {
		t.Fatalf("last = %q ok=%v, want 第14句", last.InputText, ok)
	}
}

func TestHistoryIsCopy(t *testing.T) {
	s := NewStore()
	s.Append("user-1", entry("打开灯"))

	got := s.History("user-1")
	got[0].InputText = "改掉了"

	if again := s.History("user-1"); again[0].InputText != "打开灯" {
		t.Fatalf("stored entry mutated through returned slice")
	}
}

func TestClear(t *testing.T) {
	s := NewStore()
	s.Append("user-1", entry("打开灯"))
	s.Clear("user-1")
	if got := s.History("user-1"); len(got) != 0 {
		t.Fatalf("history len = %d after clear, want 0", len(got))
	}
	if _, ok := s.Last("user-1"); ok {
		t.Fatalf("Last reported an entry after clear")
	}
}

func TestConcurrentAppend(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				s.Append("user-1", entry("打开灯"))
			}
		}()
	}
	wg.Wait()

	if got := s.History("user-1"); len(got) != defaultCapacity {
		t.Fatalf("history len = %d, want %d", len(got), defaultCapacity)
	}
}
