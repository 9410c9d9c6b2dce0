package moodle

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"
)

// Login authenticates the session against the standard Moodle login form.
// The form's logintoken is echoed back with the credentials. When the
// response to the POST still contains a logintoken field the form was served
// again and ErrLoginFailed is returned.
func (c *Client) Login(ctx context.Context, loginURL, username, password string) error {
	log.Info().Str("url", loginURL).Str("username", username).Msg("Logging in to Moodle")

	page, err := c.Get(ctx, loginURL)
	if err != nil {
		return fmt.Errorf("failed to load login page: %w", err)
	}
	doc, err := page.Document()
	if err != nil {
		return err
	}

	token, _ := doc.Find(`input[name="logintoken"]`).First().Attr("value")
	if token == "" {
		log.Warn().Str("url", loginURL).Msg("No login token found on login page")
	}

	form := url.Values{
		"username":   {username},
		"password":   {password},
		"logintoken": {token},
	}
	resp, err := c.PostForm(ctx, loginURL, form)
	if err != nil {
		return fmt.Errorf("failed to post credentials: %w", err)
	}
	if IsLoginPage(resp) {
		log.Error().Str("url", resp.URL.String()).Msg("Login form still present after POST")
		return ErrLoginFailed
	}

	log.Info().Str("url", resp.URL.String()).Msg("Login successful")
	return nil
}

// IsLoginPage reports whether page carries a Moodle login token field.
func IsLoginPage(page *Page) bool {
	doc, err := page.Document()
	if err != nil {
		return false
	}
	return doc.Find(`input[name="logintoken"]`).Length() > 0
}
