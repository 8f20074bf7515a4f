package httpapi

import "net/http"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler, swaggerEnabled bool) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
	if !swaggerEnabled {
		return
	}

	mux.HandleFunc("GET /openapi.yaml", handler.OpenAPI)
	mux.HandleFunc("GET /docs", handler.SwaggerUI)
	mux.HandleFunc("GET /docs/", handler.SwaggerUI)
}

// Webhook routes are unauthenticated: voice providers sign or allow-list on
// their side and the payloads only ever advance already-placed calls.
func registerWebhookRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("POST /v1/webhooks/{providerKind}", handler.ProviderWebhook)
}

func registerAuthorizedRoutes(mux *http.ServeMux, handler *Handler, verifier TokenVerifier) {
	registerAuthorizedCallRoutes(mux, handler, verifier)
	registerAuthorizedTemplateRoutes(mux, handler, verifier)
	registerAuthorizedAdminRoutes(mux, handler, verifier)
}

func registerInternalJobRoutes(mux *http.ServeMux, handler *Handler, internalJobToken string) {
	mux.Handle("POST /v1/internal/jobs/dispatch-tick", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.RunDispatchTickJob)))
	mux.Handle("POST /v1/internal/jobs/probe-providers", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.RunProbeProvidersJob)))
	mux.Handle("POST /v1/internal/jobs/recover", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.RunRecoverJob)))
}

func registerAuthorizedCallRoutes(mux *http.ServeMux, handler *Handler, verifier TokenVerifier) {
	mux.Handle("POST /v1/calls", RequireAuth(verifier, http.HandlerFunc(handler.EnqueueCall)))
	mux.Handle("GET /v1/calls", RequireAuth(verifier, http.HandlerFunc(handler.ListCalls)))
	mux.Handle("GET /v1/calls/{callID}", RequireAuth(verifier, http.HandlerFunc(handler.GetCall)))
	mux.Handle("POST /v1/calls/{callID}/cancel", RequireAuth(verifier, http.HandlerFunc(handler.CancelCall)))
}

func registerAuthorizedTemplateRoutes(mux *http.ServeMux, handler *Handler, verifier TokenVerifier) {
	mux.Handle("POST /v1/templates", RequireAuth(verifier, http.HandlerFunc(handler.CreateTemplate)))
	mux.Handle("GET /v1/templates", RequireAuth(verifier, http.HandlerFunc(handler.ListTemplates)))
	mux.Handle("GET /v1/templates/{templateID}", RequireAuth(verifier, http.HandlerFunc(handler.GetTemplate)))
}

func registerAuthorizedAdminRoutes(mux *http.ServeMux, handler *Handler, verifier TokenVerifier) {
	mux.Handle("POST /v1/admin/providers", RequireAuth(verifier, http.HandlerFunc(handler.CreateProvider)))
	mux.Handle("GET /v1/admin/providers", RequireAuth(verifier, http.HandlerFunc(handler.ListProviders)))
	mux.Handle("GET /v1/admin/providers/{providerID}", RequireAuth(verifier, http.HandlerFunc(handler.GetProvider)))
	mux.Handle("PUT /v1/admin/providers/{providerID}", RequireAuth(verifier, http.HandlerFunc(handler.UpdateProvider)))
	mux.Handle("DELETE /v1/admin/providers/{providerID}", RequireAuth(verifier, http.HandlerFunc(handler.DeleteProvider)))
	mux.Handle("GET /v1/admin/providers/{providerID}/health", RequireAuth(verifier, http.HandlerFunc(handler.GetProviderHealth)))
	mux.Handle("GET /v1/admin/dashboard", RequireAuth(verifier, http.HandlerFunc(handler.GetAdminDashboard)))
}
