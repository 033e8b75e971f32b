package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	requestDuration *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_http_request_duration_seconds", namespace),
			Help:    "Duration of http requests by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "code", "method"}),
	}
}

func (m *Metrics) instrument(route string, next http.HandlerFunc) http.Handler {
	return promhttp.InstrumentHandlerDuration(m.requestDuration.MustCurryWith(prometheus.Labels{"route": route}), next)
}

func NewRouter(h *Handler, m *Metrics) *mux.Router {
	routes := []struct {
		path    string
		handler http.HandlerFunc
	}{
		{"/v1/storeTransaction", h.StoreTransaction},
		{"/v1/listTransactionsByWalletPublicKeys", h.ListTransactionsByWalletPublicKey},
		{"/v1/listAllTransactions", h.ListAllTransactions},
		{"/v1/listAllTransactionsObfuscated", h.ListAllTransactionsObfuscated},
		{"/v1/revealTransactions", h.RevealTransactions},
		{"/v1/deleteAllTransactionLogs", h.DeleteAllTransactionLogs},
		{"/v1/listAllWalletPublicKeys", h.ListAllWalletPublicKeys},
		{"/v1/getWalletBalance", h.GetWalletBalance},
		{"/v1/createSecureElement", h.CreateSecureElement},
		{"/v1/getSecureElement", h.GetSecureElement},
		{"/v1/listSecureElement", h.ListSecureElements},
		{"/v1/storeValue", h.StoreValue},
		{"/v1/fetchValue", h.FetchValue},
	}

	r := mux.NewRouter()
	for _, route := range routes {
		r.Handle(route.path, m.instrument(route.path, route.handler)).Methods(http.MethodPost)
	}
	r.HandleFunc("/health", Health).Methods(http.MethodGet)
	return r
}
