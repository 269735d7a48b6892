package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// requestIDHeader response header carrying the request ID
const requestIDHeader = "Request-ID"

// statusRecorder capture the response code for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// requestLogging attach the request parameters to the request context, then log the
// request once it completes
func (h *SigningHandler) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := goutils.RestRequestParam{
			ID:         uuid.NewString(),
			Host:       r.Host,
			URI:        r.URL.String(),
			Method:     r.Method,
			RemoteAddr: r.RemoteAddr,
			Timestamp:  time.Now().UTC(),
		}
		ctx := context.WithValue(r.Context(), goutils.RestRequestParamKey{}, params)

		w.Header().Set(requestIDHeader, params.ID)
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		log.
			WithFields(h.GetLogTagsForContext(ctx)).
			WithField("response-code", recorder.status).
			WithField("latency", time.Since(params.Timestamp).String()).
			Info("Request complete")
	})
}

/*
BuildRouter define the HTTP routes of the signing service

	@param handler *SigningHandler - the request handlers
	@returns the router
*/
func BuildRouter(handler *SigningHandler) *mux.Router {
	router := mux.NewRouter()
	router.Use(handler.requestLogging)

	router.HandleFunc("/sign", handler.Sign).Methods(http.MethodPost)
	router.HandleFunc("/get_signed/{id}", handler.GetSigned).Methods(http.MethodGet)
	router.HandleFunc("/health", handler.Health).Methods(http.MethodGet)

	return router
}

/*
BuildServer define the HTTP server of the signing service

	@param listenOn string - listen interface
	@param port int - listen port
	@param readTimeout time.Duration - request read timeout
	@param writeTimeout time.Duration - response write timeout
	@param handler *SigningHandler - the request handlers
	@returns the server
*/
func BuildServer(
	listenOn string, port int, readTimeout, writeTimeout time.Duration, handler *SigningHandler,
) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", listenOn, port),
		Handler:      BuildRouter(handler),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}
