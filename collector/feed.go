package collector

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/blacklist-hub/blacklist/collection/envcfg"
)

const feedTimeout = 30 * time.Second

// HTTPFeed is a login-then-download collector for line-oriented IP feeds.
// It does not parse HTML or spreadsheets; sources that only publish those
// formats need their own Collector.
type HTTPFeed struct {
	name    string
	baseURL string
	client  *http.Client
}

// NewRegtech builds the REGTECH feed collector. The base URL can be
// overridden through REGTECH_BASE_URL for staging environments.
func NewRegtech() *HTTPFeed {
	return newHTTPFeed("regtech", envcfg.EnvRegtechBaseURL, "https://regtech.fsec.or.kr")
}

// NewSecudium builds the SECUDIUM feed collector.
func NewSecudium() *HTTPFeed {
	return newHTTPFeed("secudium", envcfg.EnvSecudiumBaseURL, "https://secudium.skinfosec.co.kr")
}

func newHTTPFeed(name, urlEnv, defaultURL string) *HTTPFeed {
	baseURL := strings.TrimRight(os.Getenv(urlEnv), "/")
	if baseURL == "" {
		baseURL = defaultURL
	}
	jar, _ := cookiejar.New(nil)
	return &HTTPFeed{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: feedTimeout, Jar: jar},
	}
}

func (f *HTTPFeed) Name() string { return f.name }

// Collect logs in with the environment credentials and downloads the current
// blacklist, counting entries. Any failure is reported in the result, never
// returned as an error; the coordinator records the outcome either way.
func (f *HTTPFeed) Collect(ctx context.Context) Result {
	username, password := envcfg.Credentials(f.name)
	if username == "" || password == "" {
		return Result{Success: false, Message: f.name + " credentials not configured"}
	}

	if err := f.login(ctx, username, password); err != nil {
		return Result{Success: false, Message: fmt.Sprintf("login failed: %v", err)}
	}

	count, err := f.download(ctx)
	if err != nil {
		return Result{Success: false, Message: fmt.Sprintf("download failed: %v", err)}
	}
	return Result{
		Success:        true,
		Message:        fmt.Sprintf("collected %d entries from %s", count, f.name),
		CollectedCount: count,
	}
}

func (f *HTTPFeed) login(ctx context.Context, username, password string) error {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		f.baseURL+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (f *HTTPFeed) download(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/blacklist/export", nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	count := 0
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, err
	}
	return count, nil
}
