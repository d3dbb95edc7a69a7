package telegram

import "time"

// RequestTimeout exposes the HTTP deadline applied to Bot API calls.
func (c *Client) RequestTimeout() time.Duration { return c.timeout }
