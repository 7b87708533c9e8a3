package links

import (
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "no links",
			body: "Just some text.",
			want: nil,
		},
		{
			name: "single link",
			body: "See [other](other.md) for details.",
			want: []string{"other.md"},
		},
		{
			name: "multiple links",
			body: "Go to [a](a.md) and [b](/b.md) and [c](http://wiki.test/wiki/c.md).",
			want: []string{"a.md", "/b.md", "http://wiki.test/wiki/c.md"},
		},
		{
			name: "fragment only links are excluded",
			body: "See [section](#overview) above.",
			want: nil,
		},
		{
			name: "mixed fragment and real links",
			body: "See [overview](#top) and [guide](guide.md).",
			want: []string{"guide.md"},
		},
		{
			name: "empty body",
			body: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.body)
			if len(got) != len(tt.want) {
				t.Fatalf("Extract() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Extract()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		dest    string
		want    string
	}{
		{
			name:    "already absolute",
			baseURL: "http://wiki.test/wiki/dir/page.md",
			dest:    "http://other.test/wiki/doc.md",
			want:    "http://other.test/wiki/doc.md",
		},
		{
			name:    "relative sibling",
			baseURL: "http://wiki.test/wiki/dir/page.md",
			dest:    "other.md",
			want:    "http://wiki.test/wiki/dir/other.md",
		},
		{
			name:    "absolute path",
			baseURL: "http://wiki.test/wiki/dir/page.md",
			dest:    "/root.md",
			want:    "http://wiki.test/root.md",
		},
		{
			name:    "parent directory",
			baseURL: "http://wiki.test/wiki/b/page.md",
			dest:    "../c.md",
			want:    "http://wiki.test/wiki/c.md",
		},
		{
			name:    "empty base URL",
			baseURL: "",
			dest:    "file.md",
			want:    "file.md",
		},
		{
			name:    "http link stays absolute",
			baseURL: "http://wiki.test/wiki/page.md",
			dest:    "https://example.com/doc",
			want:    "https://example.com/doc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.baseURL, tt.dest)
			if got != tt.want {
				t.Errorf("Resolve(%q, %q) = %q, want %q", tt.baseURL, tt.dest, got, tt.want)
			}
		})
	}
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "h1 heading",
			body: "# My Document\n\nSome content.",
			want: "My Document",
		},
		{
			name: "no heading",
			body: "Just plain text.",
			want: "",
		},
		{
			name: "h2 only",
			body: "## Not a title\n\nContent.",
			want: "",
		},
		{
			name: "h1 after h2",
			body: "## Sub\n\n# Main Title\n\nContent.",
			want: "Main Title",
		},
		{
			name: "empty body",
			body: "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractTitle(tt.body)
			if got != tt.want {
				t.Errorf("ExtractTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

const wikiPage = `<!DOCTYPE html>
<html><head><title>Raven - Wikipedia</title>
<link rel="stylesheet" href="/w/load.php?modules=site">
</head><body>
<a href="#mw-head">Jump to navigation</a>
<a href="/wiki/%D0%92%D0%BE%D1%80%D0%BE%D0%BD">Raven</a>
<a href="/wiki/Corvus">Corvus</a>
<a href="/wiki/Corvus#Species">Corvus species</a>
<a href="/wiki/Category:Birds">Birds</a>
<a href="/wiki/File:Raven.jpg">Picture</a>
<a href="/wiki/Main_Page">Main page</a>
<a href="/w/index.php?title=Raven&action=edit">Edit</a>
<a href="https://en.wikipedia.org/wiki/Raven">English</a>
<a href="https://wiki.test/wiki/Writing_desk">Writing desk</a>
<a href=" /wiki/Bird ">Bird</a>
<a>no href</a>
</body></html>`

func TestHTMLLinks(t *testing.T) {
	h := HTML{Scope: Scope{
		Origin:     "https://wiki.test",
		PathPrefix: "/wiki/",
		Exclude:    []string{"https://wiki.test/wiki/Main_Page"},
	}}

	got := h.Links("https://wiki.test/wiki/Raven", wikiPage)
	want := []string{
		"https://wiki.test/wiki/%D0%92%D0%BE%D1%80%D0%BE%D0%BD",
		"https://wiki.test/wiki/Corvus",
		"https://wiki.test/wiki/Writing_desk",
		"https://wiki.test/wiki/Bird",
	}
	if len(got) != len(want) {
		t.Fatalf("Links() = %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("Links()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestHTMLLinksMalformedInput(t *testing.T) {
	h := HTML{Scope: Scope{Origin: "https://wiki.test", PathPrefix: "/wiki/"}}
	for _, body := range []string{"", "<<<>>>", "<a href=", "not html at all"} {
		if got := h.Links("https://wiki.test/wiki/X", body); len(got) != 0 {
			t.Errorf("Links(%q) = %v, want none", body, got)
		}
	}
}

func TestHTMLTitle(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "wiki page", body: wikiPage, want: "Raven - Wikipedia"},
		{name: "entities decoded", body: "<title>Tom &amp; Jerry</title>", want: "Tom & Jerry"},
		{name: "whitespace kept", body: "<title> Raven\n</title>", want: " Raven\n"},
		{name: "case kept", body: "<title>raven - wikipedia</title>", want: "raven - wikipedia"},
		{name: "first title wins", body: "<title>One</title><title>Two</title>", want: "One"},
		{name: "no title", body: "<html><body>Hi</body></html>", want: ""},
		{name: "empty body", body: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (HTML{}).Title(tt.body); got != tt.want {
				t.Errorf("Title() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMarkdownLinks(t *testing.T) {
	m := Markdown{Scope: Scope{PathPrefix: "/wiki/"}}
	body := "# Home\n\n" +
		"[About](about.md) [again](about.md#team) [ext](https://elsewhere.test/wiki/x.md) " +
		"[tag](Category:Tags.md) [up](../outside.md) [top](#top)"

	got := m.Links("http://127.0.0.1:8080/wiki/index.md", body)
	want := []string{"http://127.0.0.1:8080/wiki/about.md"}
	if len(got) != len(want) || got[0] != want[0] {
		t.Fatalf("Links() = %v, want %v", got, want)
	}
	if title := m.Title(body); title != "Home" {
		t.Errorf("Title() = %q, want %q", title, "Home")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		format  string
		want    Extractor
		wantErr bool
	}{
		{format: "", want: HTML{}},
		{format: "html", want: HTML{}},
		{format: "HTML", want: HTML{}},
		{format: "markdown", want: Markdown{}},
		{format: "md", want: Markdown{}},
		{format: "pdf", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("format="+tt.format, func(t *testing.T) {
			got, err := New(tt.format, Scope{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q): got err=%v, wantErr=%v", tt.format, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			switch tt.want.(type) {
			case HTML:
				if _, ok := got.(HTML); !ok {
					t.Errorf("New(%q) = %T, want HTML", tt.format, got)
				}
			case Markdown:
				if _, ok := got.(Markdown); !ok {
					t.Errorf("New(%q) = %T, want Markdown", tt.format, got)
				}
			}
		})
	}
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://ru.wikipedia.org/wiki/%D0%92%D0%BE%D1%80%D0%BE%D0%BD", "https://ru.wikipedia.org/wiki/Ворон"},
		{"http://localhost:8080/wiki/Writing_desk", "http://localhost:8080/wiki/Writing_desk"},
		{"/wiki/AC%2FDC", "/wiki/AC/DC"},
		{"::bad", "::bad"},
	}
	for _, tt := range tests {
		if got := Display(tt.in); got != tt.want {
			t.Errorf("Display(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
