package asr

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// Dial opens a websocket connection with a bearer-token Authorization
// header. Both DashScope backends authenticate this way.
func Dial(ctx context.Context, url, apiKey string) (*websocket.Conn, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+apiKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}
