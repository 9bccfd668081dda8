package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterMux binds gorilla/mux routes.
func (h *Handler) RegisterMux(r *mux.Router) {
	r.HandleFunc(routeAchievements, h.handleCreateAchievement).
		Methods(http.MethodPost).
		Name(routeNameCreateAchievement)
	r.HandleFunc(routeAchievements, h.handleListAchievements).
		Methods(http.MethodGet).
		Name(routeNameListAchievements)
	r.HandleFunc(routeAchievement, h.handleGetAchievement).Methods(http.MethodGet).Name(routeNameGetAchievement)
	r.HandleFunc(routeSubmit, h.handleSubmit).Methods(http.MethodPost).Name(routeNameSubmit)
	r.HandleFunc(routeVerify, h.handleVerify).Methods(http.MethodPost).Name(routeNameVerify)
	r.HandleFunc(routeReject, h.handleReject).Methods(http.MethodPost).Name(routeNameReject)
	r.HandleFunc(routeClaim, h.handleClaim).Methods(http.MethodPost).Name(routeNameClaim)
	r.HandleFunc(routeAchievementCert, h.handleGetCertificate).Methods(http.MethodGet).Name(routeNameGetCertificate)

	r.HandleFunc(routePendingVerification, h.handleListPending).Methods(http.MethodGet).Name(routeNameListPending)
	r.HandleFunc(routeCertificates, h.handleListCertificates).Methods(http.MethodGet).Name(routeNameListCertificates)

	r.HandleFunc(routeVerifier, h.handleRegisterVerifier).Methods(http.MethodPut).Name(routeNameRegisterVerifier)
	r.HandleFunc(routeVerifier, h.handleGetVerifier).Methods(http.MethodGet).Name(routeNameGetVerifier)

	r.HandleFunc(routeCategories, h.handleListCategories).Methods(http.MethodGet).Name(routeNameListCategories)
	r.HandleFunc(routeImageUpload, h.handleUploadImage).Methods(http.MethodPost).Name(routeNameUploadImage)
	r.HandleFunc(routeObject, h.handleGetObject).Methods(http.MethodGet).Name(routeNameGetObject)
}
