package security

import "testing"

// TestSanitize_RemovesScriptTags はscriptタグとその内容が除去されることを検証する。
func TestSanitize_RemovesScriptTags(t *testing.T) {
	s := NewNoteSanitizer()

	got := s.Sanitize(`Meet at Davis Centre <script>alert("x")</script>`)
	want := "Meet at Davis Centre "
	if got != want {
		t.Errorf("Sanitize() = %q, want %q", got, want)
	}
}

// TestSanitize_RemovesAllTags はプレーンテキスト以外が残らないことを検証する。
func TestSanitize_RemovesAllTags(t *testing.T) {
	s := NewNoteSanitizer()

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストは変更なし", "2 seats available, $10 gas money", "2 seats available, $10 gas money"},
		{"強調タグも除去", "<strong>urgent</strong> ride", "urgent ride"},
		{"リンクはテキストのみ残る", `<a href="https://evil.example">click</a>`, "click"},
		{"imgタグは完全に除去", `<img src="https://x.example/a.png">pickup`, "pickup"},
		{"空文字列", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.Sanitize(tc.input); got != tc.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

// TestSanitize_Idempotent は同一入力に対して常に同一出力を返すことを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	s := NewNoteSanitizer()

	input := `Leaving from <b>SLC</b> around 5pm`
	first := s.Sanitize(input)
	second := s.Sanitize(first)
	if first != second {
		t.Errorf("Sanitize is not idempotent: %q then %q", first, second)
	}
}
