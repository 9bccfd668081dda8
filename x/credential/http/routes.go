package http

// Route patterns for the credential HTTP surface.
const (
	routeAchievements        = "/v1/achievements"
	routeAchievement         = "/v1/achievements/{id}"
	routeSubmit              = "/v1/achievements/{id}/submit"
	routeVerify              = "/v1/achievements/{id}/verify"
	routeReject              = "/v1/achievements/{id}/reject"
	routeClaim               = "/v1/achievements/{id}/claim"
	routeAchievementCert     = "/v1/achievements/{id}/certificate"
	routePendingVerification = "/v1/verifications/pending"
	routeCertificates        = "/v1/certificates"
	routeVerifier            = "/v1/verifiers/{address}"
	routeCategories          = "/v1/categories"
	routeImageUpload         = "/v1/uploads/images"
	routeObject              = "/v1/objects/{digest}"
)

// Route names for mux URL building.
const (
	routeNameCreateAchievement = "achievements_create"
	routeNameListAchievements  = "achievements_list"
	routeNameGetAchievement    = "achievements_get"
	routeNameSubmit            = "achievements_submit"
	routeNameVerify            = "achievements_verify"
	routeNameReject            = "achievements_reject"
	routeNameClaim             = "achievements_claim"
	routeNameGetCertificate    = "achievements_certificate"
	routeNameListPending       = "verifications_pending"
	routeNameListCertificates  = "certificates_list"
	routeNameRegisterVerifier  = "verifiers_register"
	routeNameGetVerifier       = "verifiers_get"
	routeNameListCategories    = "categories_list"
	routeNameUploadImage       = "uploads_image"
	routeNameGetObject         = "objects_get"
)
