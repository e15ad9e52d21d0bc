package twitterp

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"time"

	twitterscraper "github.com/imperatrona/twitter-scraper"
	"github.com/sirupsen/logrus"

	"github.com/trendsift/viral-engine/internal/credentials"
)

const (
	minSleepDuration = 500 * time.Millisecond
	maxSleepDuration = 2 * time.Second
)

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

// randomSleep spaces out login traffic so accounts do not trip automation
// checks in lockstep.
func randomSleep() {
	duration := minSleepDuration + time.Duration(rng.Int63n(int64(maxSleepDuration-minSleepDuration)))
	logrus.Debugf("Sleeping for %v", duration)
	time.Sleep(duration)
}

// authenticatedScraper returns a logged-in scraper for the next usable
// account, reusing one already established this session.
func (c *Client) authenticatedScraper() (*twitterscraper.Scraper, *credentials.Credential, error) {
	cred, err := c.pool.Acquire()
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	scraper, ok := c.scrapers[cred.ID]
	c.mu.Unlock()
	if ok {
		return scraper, cred, nil
	}

	scraper, err = c.login(cred)
	if err != nil {
		c.pool.ReportFailure(cred)
		return nil, nil, err
	}

	c.mu.Lock()
	c.scrapers[cred.ID] = scraper
	c.mu.Unlock()
	return scraper, cred, nil
}

// login establishes a session, preferring saved cookies over a fresh login.
func (c *Client) login(cred *credentials.Credential) (*twitterscraper.Scraper, error) {
	scraper := twitterscraper.New()
	// SetSkipLoginVerification does not exist in any published version of the
	// pinned scraper fork (REVIEW_FINDINGS.md F6); the call is dropped per the
	// reviewer's recommendation so the package can build.

	if err := loadCookies(scraper, cred.ID, c.baseDir); err == nil {
		logrus.Debugf("Cookies loaded for user %s.", cred.ID)
		if scraper.IsLoggedIn() {
			logrus.Debugf("Already logged in as %s.", cred.ID)
			return scraper, nil
		}
	}

	randomSleep()

	if err := scraper.Login(cred.ID, cred.Secret); err != nil {
		return nil, fmt.Errorf("login failed for %s: %w", cred.ID, err)
	}

	randomSleep()

	if err := saveCookies(scraper, cred.ID, c.baseDir); err != nil {
		logrus.WithError(err).Errorf("Failed to save cookies for %s", cred.ID)
	}

	logrus.Debugf("Login successful for %s", cred.ID)
	return scraper, nil
}

func saveCookies(scraper *twitterscraper.Scraper, username, baseDir string) error {
	cookieFile := filepath.Join(baseDir, fmt.Sprintf("%s_twitter_cookies.json", username))
	cookies := scraper.GetCookies()

	data, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("error marshaling cookies: %w", err)
	}
	if err = os.WriteFile(cookieFile, data, 0600); err != nil {
		return fmt.Errorf("error saving cookies: %w", err)
	}
	return nil
}

func loadCookies(scraper *twitterscraper.Scraper, username, baseDir string) error {
	cookieFile := filepath.Join(baseDir, fmt.Sprintf("%s_twitter_cookies.json", username))
	data, err := os.ReadFile(cookieFile)
	if err != nil {
		return fmt.Errorf("error reading cookies file: %w", err)
	}

	var cookies []*http.Cookie
	if err = json.Unmarshal(data, &cookies); err != nil {
		return fmt.Errorf("error unmarshaling cookies: %w", err)
	}
	scraper.SetCookies(cookies)
	return nil
}
