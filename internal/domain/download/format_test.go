package download

import "testing"

func TestSelectFormat_Expressions(t *testing.T) {
	cases := []struct {
		quality   string
		audioOnly bool
		want      string
	}{
		{"best", false, "best[ext=mp4]/best"},
		{"", false, "best[ext=mp4]/best"},
		{"ultra", false, "best[ext=mp4]/best"},
		{"abcp", false, "best[ext=mp4]/best"},
		{"worst", false, "worst[ext=mp4]/worst"},
		{"WORST", false, "worst[ext=mp4]/worst"},
		{"480p", false, "best[height<=480][ext=mp4]/best[height<=480]/best[ext=mp4]/best"},
		{"1080p", false, "best[height<=1080][ext=mp4]/best[height<=1080]/best[ext=mp4]/best"},
		{"720p", true, "bestaudio/best"},
		{"worst", true, "bestaudio/best"},
		{"", true, "bestaudio/best"},
	}

	for _, tc := range cases {
		got := SelectFormat(tc.quality, tc.audioOnly).String()
		if got != tc.want {
			t.Fatalf("quality=%q audio=%v: expected %q, got %q", tc.quality, tc.audioOnly, tc.want, got)
		}
	}
}

func TestSelectFormat_IsDeterministic(t *testing.T) {
	a := SelectFormat("720p", false).String()
	b := SelectFormat("720p", false).String()
	if a != b {
		t.Fatalf("expected identical output, got %q and %q", a, b)
	}
}

func TestSelect_HeightChainFallsBack(t *testing.T) {
	fc := SelectFormat("480p", false)

	withMP4 := []Candidate{
		{ID: "1080", Ext: "mp4", Height: 1080, HasVideo: true, HasAudio: true},
		{ID: "480mp4", Ext: "mp4", Height: 480, HasVideo: true, HasAudio: true},
		{ID: "360mp4", Ext: "mp4", Height: 360, HasVideo: true, HasAudio: true},
		{ID: "480webm", Ext: "webm", Height: 480, HasVideo: true, HasAudio: true},
	}
	got, clause, ok := fc.Select(withMP4)
	if !ok || got.ID != "480mp4" || clause != 0 {
		t.Fatalf("expected 480mp4 from first clause, got %+v clause=%d ok=%v", got, clause, ok)
	}

	noMP4 := []Candidate{
		{ID: "1080mp4", Ext: "mp4", Height: 1080, HasVideo: true, HasAudio: true},
		{ID: "360webm", Ext: "webm", Height: 360, HasVideo: true, HasAudio: true},
	}
	got, clause, ok = fc.Select(noMP4)
	if !ok || got.ID != "360webm" || clause != 1 {
		t.Fatalf("expected 360webm from second clause, got %+v clause=%d ok=%v", got, clause, ok)
	}

	tooLarge := []Candidate{
		{ID: "1080webm", Ext: "webm", Height: 1080, HasVideo: true, HasAudio: true},
		{ID: "720mp4", Ext: "mp4", Height: 720, HasVideo: true, HasAudio: true},
	}
	got, clause, ok = fc.Select(tooLarge)
	if !ok || got.ID != "720mp4" || clause != 2 {
		t.Fatalf("expected 720mp4 from third clause, got %+v clause=%d ok=%v", got, clause, ok)
	}

	onlyWebm := []Candidate{
		{ID: "1080webm", Ext: "webm", Height: 1080, HasVideo: true, HasAudio: true},
		{ID: "720webm", Ext: "webm", Height: 720, HasVideo: true, HasAudio: true},
	}
	got, clause, ok = fc.Select(onlyWebm)
	if !ok || got.ID != "1080webm" || clause != 3 {
		t.Fatalf("expected 1080webm from last clause, got %+v clause=%d ok=%v", got, clause, ok)
	}
}

func TestSelect_AudioOnlyPrefersAudioStream(t *testing.T) {
	fc := SelectFormat("1080p", true)
	candidates := []Candidate{
		{ID: "video", Ext: "mp4", Height: 1080, HasVideo: true, HasAudio: true, Bitrate: 4000},
		{ID: "audio-low", Ext: "m4a", HasAudio: true, Bitrate: 64},
		{ID: "audio-high", Ext: "webm", HasAudio: true, Bitrate: 160},
	}
	got, clause, ok := fc.Select(candidates)
	if !ok || got.ID != "audio-high" || clause != 0 {
		t.Fatalf("expected audio-high, got %+v clause=%d ok=%v", got, clause, ok)
	}

	got, clause, ok = fc.Select(candidates[:1])
	if !ok || got.ID != "video" || clause != 1 {
		t.Fatalf("expected fallback to combined stream, got %+v clause=%d ok=%v", got, clause, ok)
	}
}

func TestSelect_WorstPicksLowestHeight(t *testing.T) {
	fc := SelectFormat("worst", false)
	got, _, ok := fc.Select([]Candidate{
		{ID: "720", Ext: "mp4", Height: 720, HasVideo: true, HasAudio: true},
		{ID: "144", Ext: "mp4", Height: 144, HasVideo: true, HasAudio: true},
		{ID: "96webm", Ext: "webm", Height: 96, HasVideo: true, HasAudio: true},
	})
	if !ok || got.ID != "144" {
		t.Fatalf("expected 144, got %+v", got)
	}
}

func TestSelect_NoCandidates(t *testing.T) {
	if _, _, ok := SelectFormat("best", false).Select(nil); ok {
		t.Fatalf("expected no selection for empty candidate list")
	}
}

func TestAvailableHeights(t *testing.T) {
	got := AvailableHeights([]Candidate{
		{ID: "18", Height: 360, HasVideo: true, HasAudio: true},
		{ID: "137", Height: 1080, HasVideo: true},
		{ID: "22", Height: 720, HasVideo: true, HasAudio: true},
		{ID: "136", Height: 720, HasVideo: true},
		{ID: "140", HasAudio: true, Bitrate: 128},
	})
	want := []int{1080, 720, 360}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if got := AvailableHeights(nil); len(got) != 0 {
		t.Fatalf("expected no heights, got %v", got)
	}
}
