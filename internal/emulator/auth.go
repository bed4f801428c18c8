package emulator

import (
	"net/http"
	"strconv"
)

// AuthHandler serves GET /auth the way the REST API does, so SDK clients
// can be pointed at the emulator for both endpoints.
func (s *Server) AuthHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		cid := r.Header.Get("X-Auth-Client")
		if cid != strconv.Itoa(int(s.cfg.ClientID)) || r.Header.Get("X-Auth-Token") != s.cfg.APIKey {
			s.logger.Warn().Str("cid", cid).Msg("Rejected auth request")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"code":401,"message":"invalid credentials"}`))
			return
		}
		w.Write([]byte(`{"cid":` + strconv.Itoa(int(s.cfg.ClientID)) + `}`))
	})
	return mux
}
