package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/v0xg/pagepilot/internal/executor"
)

// DefaultStartURL is the page a run opens when none is given
const DefaultStartURL = "https://practicetestautomation.com/practice-test-login/"

// Options configures the browser session
type Options struct {
	StartURL   string
	Width      int
	Height     int
	Headless   bool
	SlowMotion time.Duration // delay inserted by rod before each input event
	Timeout    time.Duration // navigation and load timeout
	Bin        string        // Chrome/Chromium binary, looked up when empty
	ProfileDir string        // Chrome/Chromium profile directory for authenticated sessions
}

// Browser wraps the Rod browser and the page a run owns
type Browser struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *Page
}

// Launch starts a browser and opens opts.StartURL
func Launch(ctx context.Context, opts Options) (*Browser, error) {
	if opts.StartURL == "" {
		opts.StartURL = DefaultStartURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Width == 0 || opts.Height == 0 {
		opts.Width, opts.Height = 1280, 720
	}

	bin := opts.Bin
	if bin == "" {
		bin, _ = launcher.LookPath()
	}
	l := launcher.New().Context(ctx).Bin(bin).Headless(opts.Headless)
	if opts.ProfileDir != "" {
		l = l.UserDataDir(opts.ProfileDir)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u).SlowMotion(opts.SlowMotion)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		browser.Close()
		l.Kill()
		return nil, fmt.Errorf("open page: %w", err)
	}

	b := &Browser{launcher: l, browser: browser, page: &Page{page: page}}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Width,
		Height:            opts.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		b.Close()
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	if err := b.page.Navigate(ctx, opts.StartURL, opts.Timeout); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// Close cleans up browser resources
func (b *Browser) Close() error {
	if b.page != nil {
		b.page.page.Close()
	}
	var err error
	if b.browser != nil {
		err = b.browser.Close()
	}
	if b.launcher != nil {
		b.launcher.Kill()
	}
	return err
}

// Page returns the page owned by this session
func (b *Browser) Page() *Page {
	return b.page
}

// Page is a live browser tab. It observes page state and performs actions.
type Page struct {
	page *rod.Page
}

var (
	_ Source            = (*Page)(nil)
	_ executor.Actuator = (*Page)(nil)
)

// Navigate loads url and waits for the load event
func (p *Page) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	page := p.page.Context(ctx).Timeout(timeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

// Snapshot reads the full accessibility tree and collapses ignored nodes
func (p *Page) Snapshot(ctx context.Context) (*Node, error) {
	res, err := proto.AccessibilityGetFullAXTree{}.Call(p.page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("get accessibility tree: %w", err)
	}
	return buildTree(res.Nodes), nil
}

// Content returns the serialized DOM
func (p *Page) Content(ctx context.Context) (string, error) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("get page html: %w", err)
	}
	return html, nil
}

// Screenshot captures the viewport as PNG
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// Locate returns the first element matching selector, retrying until ctx ends
func (p *Page) Locate(ctx context.Context, selector string) (executor.Element, error) {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return nil, err
	}
	return &element{el: el}, nil
}

// LocateText returns the innermost element whose visible text is exactly
// text, so a wrapper around the target never wins over the target itself
func (p *Page) LocateText(ctx context.Context, text string) (executor.Element, error) {
	el, err := p.page.Context(ctx).ElementX(exactTextXPath(text))
	if err != nil {
		return nil, err
	}
	return &element{el: el}, nil
}

// exactTextXPath matches elements under body whose whitespace-normalized
// text equals text and that have no descendant matching the same way
func exactTextXPath(text string) string {
	lit := xpathLiteral(strings.Join(strings.Fields(text), " "))
	return fmt.Sprintf("//body//*[normalize-space(.)=%s and not(.//*[normalize-space(.)=%s])]", lit, lit)
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences
func xpathLiteral(s string) string {
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, `'`)
	quoted := make([]string, 0, 2*len(parts))
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if part != "" {
			quoted = append(quoted, `'`+part+`'`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

type element struct {
	el *rod.Element
}

// Fill replaces the element's content with text
func (e *element) Fill(ctx context.Context, text string) error {
	el := e.el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("select text: %w", err)
	}
	return el.Input(text)
}

// Click clicks the element, giving up after timeout
func (e *element) Click(ctx context.Context, timeout time.Duration) error {
	return e.el.Context(ctx).Timeout(timeout).Click(proto.InputMouseButtonLeft, 1)
}

// buildTree links the flat CDP node list into a tree. Ignored nodes are
// dropped and their children attached to the nearest kept ancestor.
func buildTree(nodes []*proto.AccessibilityAXNode) *Node {
	if len(nodes) == 0 {
		return nil
	}

	byID := make(map[proto.AccessibilityAXNodeID]*proto.AccessibilityAXNode, len(nodes))
	for _, n := range nodes {
		byID[n.NodeID] = n
	}

	seen := make(map[proto.AccessibilityAXNodeID]bool, len(nodes))
	var convert func(n *proto.AccessibilityAXNode) []*Node
	convert = func(n *proto.AccessibilityAXNode) []*Node {
		if seen[n.NodeID] {
			return nil
		}
		seen[n.NodeID] = true

		var children []*Node
		for _, id := range n.ChildIDs {
			if child, ok := byID[id]; ok {
				children = append(children, convert(child)...)
			}
		}
		if n.Ignored {
			return children
		}
		return []*Node{{
			Role:     axText(n.Role),
			Name:     axText(n.Name),
			Value:    axText(n.Value),
			Children: children,
		}}
	}

	var roots []*Node
	for _, n := range nodes {
		if _, hasParent := byID[n.ParentID]; n.ParentID != "" && hasParent {
			continue
		}
		roots = append(roots, convert(n)...)
	}

	switch len(roots) {
	case 0:
		return nil
	case 1:
		return roots[0]
	default:
		return &Node{Role: "WebArea", Children: roots}
	}
}

func axText(v *proto.AccessibilityAXValue) string {
	if v == nil || v.Value.Nil() {
		return ""
	}
	return v.Value.String()
}
