package httpserver

import (
	"net/http"

	"parkpay/backend/services/parking-service/internal/http/middleware"
)

// Routes groups handlers.
type Routes struct {
	Health         http.HandlerFunc
	Login          http.HandlerFunc
	Enter          http.HandlerFunc
	Lookup         http.HandlerFunc
	Pay            http.HandlerFunc
	Quote          http.HandlerFunc
	OpenSessions   http.HandlerFunc
	Events         http.HandlerFunc
	CreateCard     http.HandlerFunc
	SetCardLost    http.HandlerFunc
	SaveRates      http.HandlerFunc
	CreateOperator http.HandlerFunc
}

// NewRouter registers endpoints. Operator routes go through auth, admin routes through adminAuth.
func NewRouter(routes Routes, auth, adminAuth func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	if routes.Health != nil {
		mux.Handle("/health", method(http.MethodGet, routes.Health))
	}

	if routes.Login != nil {
		mux.Handle("/auth/login", method(http.MethodPost, routes.Login))
	}

	operator := func(handler http.HandlerFunc) http.Handler {
		return middleware.Chain(handler, auth)
	}
	register := func(path, verb string, handler http.HandlerFunc, wrap func(http.HandlerFunc) http.Handler) {
		if handler != nil {
			mux.Handle(path, method(verb, wrap(handler)))
		}
	}

	register("/parking/entries", http.MethodPost, routes.Enter, operator)
	register("/parking/lookup", http.MethodGet, routes.Lookup, operator)
	register("/parking/payments", http.MethodPost, routes.Pay, operator)
	register("/parking/quote", http.MethodPost, routes.Quote, operator)
	register("/parking/sessions/open", http.MethodGet, routes.OpenSessions, operator)
	register("/parking/events", http.MethodGet, routes.Events, operator)

	admin := func(handler http.HandlerFunc) http.Handler {
		return middleware.Chain(handler, adminAuth)
	}
	register("/admin/cards", http.MethodPost, routes.CreateCard, admin)
	register("/admin/cards/lost", http.MethodPost, routes.SetCardLost, admin)
	register("/admin/rates", http.MethodPost, routes.SaveRates, admin)
	register("/admin/operators", http.MethodPost, routes.CreateOperator, admin)

	return mux
}

func method(expected string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
