package htmlprep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/alnah/go-pdfjobs/internal/fileutil"
)

// ErrImageDownload indicates a remote image could not be fetched.
var ErrImageDownload = errors.New("failed to download image")

// MaxImageSize limits a single downloaded image (default 20MB).
var MaxImageSize int64 = 20 << 20

// LocalizeImages downloads every http(s) img[src] to a file in dir (system
// temp dir when empty) and points the tag at that file. Each URL is fetched
// once. Returns the rewritten HTML and the created files, which the caller
// owns. On error, files created so far are removed.
func LocalizeImages(ctx context.Context, client *http.Client, htmlContent, dir string) (string, []string, error) {
	if client == nil {
		client = http.DefaultClient
	}

	doc, isFragment, err := parseHTML(htmlContent)
	if err != nil {
		return "", nil, fmt.Errorf("parsing HTML: %w", err)
	}

	var imgs []*html.Node
	collectImages(doc, &imgs)
	if len(imgs) == 0 {
		return htmlContent, nil, nil
	}

	local := make(map[string]string)
	var created []string
	fail := func(err error) (string, []string, error) {
		for _, p := range created {
			_ = os.Remove(p)
		}
		return "", nil, err
	}

	for _, img := range imgs {
		for i, attr := range img.Attr {
			if attr.Key != "src" || !fileutil.IsURL(attr.Val) {
				continue
			}
			p, ok := local[attr.Val]
			if !ok {
				if p, err = download(ctx, client, attr.Val, dir); err != nil {
					return fail(err)
				}
				local[attr.Val] = p
				created = append(created, p)
			}
			img.Attr[i].Val = pathToFileURL(p)
		}
	}

	out, err := renderHTML(doc, isFragment)
	if err != nil {
		return fail(fmt.Errorf("rendering HTML: %w", err))
	}
	return out, created, nil
}

func collectImages(n *html.Node, out *[]*html.Node) {
	if n.Type == html.ElementNode && n.DataAtom == atom.Img {
		*out = append(*out, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectImages(c, out)
	}
}

// download fetches rawURL into a new temp file and returns its path.
func download(ctx context.Context, client *http.Client, rawURL, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrImageDownload, rawURL, err)
	}
	resp, err := client.Do(req) // #nosec G107 -- URL comes from the caller's template
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrImageDownload, rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s: status %d", ErrImageDownload, rawURL, resp.StatusCode)
	}

	f, err := os.CreateTemp(dir, "pdfjobs-img-*"+imageExtension(rawURL, resp.Header.Get("Content-Type")))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageDownload, err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(resp.Body, MaxImageSize+1))
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("%w: %s: %v", ErrImageDownload, rawURL, err)
	}
	if n > MaxImageSize {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("%w: %s: larger than %d bytes", ErrImageDownload, rawURL, MaxImageSize)
	}
	return f.Name(), nil
}

// imageExtension picks a file extension from the URL path, then the content type.
func imageExtension(rawURL, contentType string) string {
	if u, err := url.Parse(rawURL); err == nil {
		switch ext := strings.ToLower(path.Ext(u.Path)); ext {
		case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".bmp":
			return ext
		}
	}
	switch {
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "jpeg"):
		return ".jpg"
	case strings.Contains(contentType, "gif"):
		return ".gif"
	case strings.Contains(contentType, "svg"):
		return ".svg"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	}
	return ".img"
}

// parseHTML parses HTML content, handling both full documents and fragments.
func parseHTML(content string) (*html.Node, bool, error) {
	trimmed := strings.ToLower(strings.TrimSpace(content))

	if strings.HasPrefix(trimmed, "<!doctype") || strings.HasPrefix(trimmed, "<html") {
		doc, err := html.Parse(strings.NewReader(content))
		return doc, false, err
	}

	// Fragment: parse with body context to avoid wrapping
	body := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Body,
		Data:     "body",
	}
	nodes, err := html.ParseFragment(strings.NewReader(content), body)
	if err != nil {
		return nil, true, err
	}

	container := &html.Node{Type: html.DocumentNode}
	for _, n := range nodes {
		container.AppendChild(n)
	}
	return container, true, nil
}

// renderHTML renders the tree back; fragments render their children only.
func renderHTML(doc *html.Node, isFragment bool) (string, error) {
	var buf strings.Builder

	if isFragment {
		for c := doc.FirstChild; c != nil; c = c.NextSibling {
			if err := html.Render(&buf, c); err != nil {
				return "", err
			}
		}
		return buf.String(), nil
	}

	if err := html.Render(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// pathToFileURL converts an absolute path to a file:// URL.
func pathToFileURL(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
	return u.String()
}
