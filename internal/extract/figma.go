package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/kalambet/ticketlens/internal/ticket"
	"golang.org/x/sync/errgroup"
)

// DefaultFigmaURL is the Figma REST API root.
const DefaultFigmaURL = "https://api.figma.com/v1"

// ErrNoFigmaToken is returned when extraction is attempted without a token.
var ErrNoFigmaToken = errors.New("figma token not configured")

// FigmaFacts is what a single Figma file contributes to the analysis context.
type FigmaFacts struct {
	FileKey    string   `json:"file_key"`
	Name       string   `json:"name"`
	Pages      []string `json:"pages"`
	Components []string `json:"components"`
	Screens    []string `json:"screens"`
	Flows      []string `json:"flows"`
	Complexity float64  `json:"complexity"`
}

// FigmaClient reads file documents from the Figma REST API.
type FigmaClient struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	concurrency int
}

// FigmaOption configures a FigmaClient.
type FigmaOption func(*FigmaClient)

// WithFigmaBaseURL points the client at another API root, mostly for tests.
func WithFigmaBaseURL(u string) FigmaOption {
	return func(c *FigmaClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) FigmaOption {
	return func(c *FigmaClient) { c.httpClient = hc }
}

// NewFigmaClient creates a client authenticating with the given personal
// access token.
func NewFigmaClient(token string, opts ...FigmaOption) *FigmaClient {
	c := &FigmaClient{
		baseURL:     DefaultFigmaURL,
		token:       token,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type figmaFile struct {
	Name     string    `json:"name"`
	Document figmaNode `json:"document"`
}

type figmaNode struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Children []figmaNode `json:"children"`
}

// Extract fetches the file behind a Figma URL and summarizes its structure.
func (c *FigmaClient) Extract(ctx context.Context, url string) (FigmaFacts, error) {
	if c.token == "" {
		return FigmaFacts{}, ErrNoFigmaToken
	}
	key := ticket.FigmaFileKey(url)
	if key == "" {
		return FigmaFacts{}, fmt.Errorf("no figma file key in %q", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files/"+key, nil)
	if err != nil {
		return FigmaFacts{}, fmt.Errorf("creating figma request: %w", err)
	}
	req.Header.Set("X-Figma-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return FigmaFacts{}, fmt.Errorf("figma request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		return FigmaFacts{}, fmt.Errorf("figma file %s: access denied", key)
	case http.StatusNotFound:
		return FigmaFacts{}, fmt.Errorf("figma file %s: not found", key)
	default:
		return FigmaFacts{}, fmt.Errorf("figma file %s: unexpected status %d", key, resp.StatusCode)
	}

	var f figmaFile
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return FigmaFacts{}, fmt.Errorf("decoding figma file: %w", err)
	}
	facts := summarizeFigma(f)
	facts.FileKey = key
	return facts, nil
}

// ExtractAll extracts every URL concurrently. Results keep the order of urls;
// a failed URL leaves a zero FigmaFacts in its slot and its error in errs.
func (c *FigmaClient) ExtractAll(ctx context.Context, urls []string) ([]FigmaFacts, []error) {
	facts := make([]FigmaFacts, len(urls))
	errs := make([]error, len(urls))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			facts[i], errs[i] = c.Extract(ctx, u)
			return nil
		})
	}
	g.Wait()
	return facts, errs
}

var (
	genericNodeNames = []string{
		"frame", "group", "rectangle", "ellipse", "line", "vector", "text",
		"image", "mask", "boolean", "star", "polygon",
	}
	uiNamePatterns = []string{
		"button", "input", "field", "card", "modal", "dialog", "header", "footer",
		"nav", "menu", "tab", "form", "list", "item", "row", "column", "container",
		"wrapper", "screen", "page", "view", "panel", "sidebar", "toolbar", "avatar",
		"badge", "chip", "tag", "label", "icon",
	}
	screenNamePatterns = []string{
		"screen", "page", "view", "dashboard", "home", "login", "signup", "profile",
		"settings", "detail", "list", "form", "checkout", "cart", "search", "results",
		"overview", "summary", "onboarding",
	}
	flowNamePatterns = []string{"flow", "journey", "process", "workflow"}
)

func summarizeFigma(f figmaFile) FigmaFacts {
	facts := FigmaFacts{Name: f.Name}
	components := map[string]struct{}{}
	screens := map[string]struct{}{}
	maxDepth := 0

	for _, page := range f.Document.Children {
		if page.Type != "CANVAS" {
			continue
		}
		facts.Pages = append(facts.Pages, page.Name)
		if containsAny(page.Name, screenNamePatterns) {
			screens[page.Name] = struct{}{}
		}
		if containsAny(page.Name, flowNamePatterns) {
			facts.Flows = append(facts.Flows, page.Name)
		}
		for _, top := range page.Children {
			if containsAny(top.Name, screenNamePatterns) {
				screens[top.Name] = struct{}{}
			}
		}
		maxDepth = max(maxDepth, walkComponents(page.Children, 1, components))
	}

	facts.Components = sortedKeys(components)
	facts.Screens = sortedKeys(screens)
	facts.Complexity = figmaComplexity(len(facts.Pages), len(facts.Components), maxDepth)
	return facts
}

// walkComponents collects UI component names and returns the deepest nesting
// level reached.
func walkComponents(nodes []figmaNode, depth int, into map[string]struct{}) int {
	if len(nodes) == 0 {
		return depth - 1
	}
	deepest := depth
	for _, n := range nodes {
		if isUIComponentName(n.Name) {
			into[n.Name] = struct{}{}
		}
		deepest = max(deepest, walkComponents(n.Children, depth+1, into))
	}
	return deepest
}

func isUIComponentName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	lower := strings.ToLower(name)
	for _, g := range genericNodeNames {
		if lower == g || strings.HasPrefix(lower, g+" ") {
			return false
		}
	}
	if containsAny(lower, uiNamePatterns) {
		return true
	}
	if strings.Contains(name, "-") {
		return true
	}
	return isPascalCase(name)
}

func isPascalCase(s string) bool {
	r := []rune(s)
	if len(r) < 2 || !unicode.IsUpper(r[0]) {
		return false
	}
	hasLower := false
	for _, c := range r[1:] {
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) {
			return false
		}
		if unicode.IsLower(c) {
			hasLower = true
		}
	}
	return hasLower
}

// figmaComplexity scores a file on 0..10 from page count, component count
// and nesting depth.
func figmaComplexity(pages, components, depth int) float64 {
	score := math.Min(float64(pages)*1.5, 3) +
		math.Min(float64(components)*0.2, 4) +
		math.Min(float64(depth)*0.5, 3)
	return math.Round(math.Min(score, 10)*10) / 10
}

func containsAny(s string, patterns []string) bool {
	s = strings.ToLower(s)
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
