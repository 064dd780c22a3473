package dispatch

import (
	"context"

	"github.com/v0xg/pagepilot/internal/crawler"
)

// BrowserLauncher returns a LaunchFunc opening a real Chromium session.
func BrowserLauncher(opts crawler.Options) LaunchFunc {
	return func(ctx context.Context) (Session, error) {
		b, err := crawler.Launch(ctx, opts)
		if err != nil {
			return nil, err
		}
		return browserSession{browser: b}, nil
	}
}

type browserSession struct {
	browser *crawler.Browser
}

func (s browserSession) Page() Page   { return s.browser.Page() }
func (s browserSession) Close() error { return s.browser.Close() }
