package http

import "net/http"

// The browser extension opens the provider's OAuth consent screen in a popup
// that redirects here. The extension reads the code from the URL itself, so
// this page only needs to exist and tell the user what happened.

const callbackSuccessPage = `<html>
  <body style="font-family: system-ui; padding: 40px; text-align: center;">
    <h2>&#10003; Connected to Pinterest</h2>
    <p>You can close this window and return to the extension.</p>
    <script>
      if (window.opener) {
        window.opener.postMessage({ type: 'pinterest-auth-complete' }, '*');
      }
    </script>
  </body>
</html>`

const callbackErrorPage = `<html>
  <body style="font-family: system-ui; padding: 40px; text-align: center;">
    <h2>Authorization Failed</h2>
    <p>You can close this window.</p>
  </body>
</html>`

func (srv *Server) authCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		srv.logger.Warn().Str("error", errParam).Msg("oauth callback returned error")
		_, _ = w.Write([]byte(callbackErrorPage))
		return
	}
	_, _ = w.Write([]byte(callbackSuccessPage))
}
