package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	apicommon "github.com/compose-network/issuer/server/api"
	"github.com/compose-network/issuer/x/credential"
	"github.com/compose-network/issuer/x/credential/achievement"
	"github.com/compose-network/issuer/x/credential/catalog"
	"github.com/compose-network/issuer/x/credential/ledger"
	"github.com/compose-network/issuer/x/credential/metadata"
	"github.com/compose-network/issuer/x/credential/registry"
	"github.com/compose-network/issuer/x/credential/store"
	"github.com/compose-network/issuer/x/credential/verification"
)

const maxJSONBody = 1 << 20

// Deps are the components served by the handler.
type Deps struct {
	Achievements *achievement.Store
	Verification *verification.Coordinator
	Registry     *registry.Registry
	Ledger       *ledger.Ledger
	Catalog      catalog.Catalog
	Images       *metadata.ImageStore
	Objects      metadata.Store
}

type Handler struct {
	deps     Deps
	validate *validator.Validate
	log      zerolog.Logger
}

func NewHandler(deps Deps, log zerolog.Logger) *Handler {
	return &Handler{
		deps:     deps,
		validate: newValidator(),
		log:      log.With().Str("component", "credential-http").Logger(),
	}
}

func (h *Handler) handleCreateAchievement(w http.ResponseWriter, r *http.Request) {
	var req createAchievementReq
	if !h.decode(w, r, &req) {
		return
	}
	owner, _ := parseAddress(req.Owner)

	a, err := h.deps.Achievements.Create(r.Context(), achievement.CreateRequest{
		Owner:       owner,
		CategoryID:  req.CategoryID,
		Title:       req.Title,
		Description: req.Description,
		Fields:      req.Fields,
	})
	if err != nil {
		writeDomainError(w, r, h.log, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handler) handleGetAchievement(w http.ResponseWriter, r *http.Request) {
	a, err := h.deps.Achievements.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, r, h.log, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) handleListAchievements(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.addressQuery(w, r, "owner", true)
	if !ok {
		return
	}
	filter := store.AchievementFilter{Owner: owner}
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, valid := credential.ParseStatus(raw)
		if !valid {
			writeDomainError(w, r, h.log, credential.Validation("unknown status %q", raw).WithContext("status", raw))
			return
		}
		filter.Status = st
	}
	list, err := h.deps.Achievements.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, h.log, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, map[string]any{"achievements": list})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitReq
	if !h.decode(w, r, &req) {
		return
	}
	caller, _ := parseAddress(req.Caller)

	a, err := h.deps.Verification.SubmitForVerification(r.Context(), mux.Vars(r)["id"], caller, credential.Proof{
		Description: req.ProofDescription,
		ImageRef:    req.ImageRef,
	})
	if err != nil {
		writeDomainError(w, r, h.log, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	verifier, ok := h.addressQuery(w, r, "verifier", false)
	if !ok {
		return
	}
	list, err := h.deps.Verification.ListPending(r.Context(), verifier)
	if err != nil {
		writeDomainError(w, r, h.log, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, map[string]any{"achievements": list})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyReq
	if !h.decode(w, r, &req) {
		return
	}
	verifier, _ := parseAddress(req.Verifier)

	a, err := h.deps.Verification.Approve(r.Context(), mux.Vars(r)["id"], verifier)
	if err != nil {
		writeDomainError(w, r, h.log, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectReq
	if !h.decode(w, r, &req) {
		return
	}
	verifier, _ := parseAddress(req.Verifier)

	a, err := h.deps.Verification.Reject(r.Context(), mux.Vars(r)["id"], verifier, req.Reason)
	if err != nil {
		writeDomainError(w, r, h.log, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimReq
	if !h.decode(w, r, &req) {
		return
	}
	owner, _ := parseAddress(req.Owner)

	cert, err := h.deps.Ledger.Claim(r.Context(), mux.Vars(r)["id"], owner)
	if err != nil {
		writeDomainError(w, r, h.log, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusCreated, cert)
}

func (h *Handler) handleGetCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := h.deps.Ledger.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, r, h.log, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, cert)
}

func (h *Handler) handleListCertificates(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.addressQuery(w, r, "owner", true)
	if !ok {
		return
	}
	certs, err := h.deps.Ledger.ListByOwner(r.Context(), owner)
	if err != nil {
		writeDomainError(w, r, h.log, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, map[string]any{"certificates": certs})
}

func (h *Handler) handleRegisterVerifier(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.addressPath(w, r)
	if !ok {
		return
	}
	var req registerVerifierReq
	if !h.decode(w, r, &req) {
		return
	}

	v, err := h.deps.Registry.Register(r.Context(), registry.RegisterRequest{
		Address:     addr,
		Name:        req.Name,
		Categories:  req.Categories,
		Credentials: req.Credentials,
	})
	if err != nil {
		writeDomainError(w, r, h.log, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) handleGetVerifier(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.addressPath(w, r)
	if !ok {
		return
	}
	v, err := h.deps.Registry.Get(r.Context(), addr)
	if err != nil {
		writeDomainError(w, r, h.log, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) handleListCategories(w http.ResponseWriter, _ *http.Request) {
	apicommon.WriteJSON(w, http.StatusOK, map[string]any{"categories": h.deps.Catalog.List()})
}

func (h *Handler) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	limit := h.deps.Images.MaxBytes()
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_body", "failed to read request body", nil)
		return
	}
	if int64(len(data)) > limit {
		apicommon.WriteError(w, r, http.StatusRequestEntityTooLarge, credential.KindValidation.String(),
			"image exceeds "+strconv.FormatInt(limit, 10)+" bytes", nil)
		return
	}

	uri, contentType, err := h.deps.Images.PutImage(r.Context(), data)
	if err != nil {
		writeDomainError(w, r, h.log, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusCreated, uploadResp{URI: uri, ContentType: contentType, Size: len(data)})
}

func (h *Handler) handleGetObject(w http.ResponseWriter, r *http.Request) {
	digest, err := metadata.ParseDigest(mux.Vars(r)["digest"])
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, credential.KindValidation.String(),
			"expect 32-byte hex digest", nil)
		return
	}
	obj, err := h.deps.Objects.Get(r.Context(), digest)
	if errors.Is(err, metadata.ErrNotFound) {
		apicommon.WriteError(w, r, http.StatusNotFound, credential.KindNotFound.String(), "object not found", nil)
		return
	}
	if err != nil {
		writeDomainError(w, r, h.log, err)
		return
	}

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("ETag", `"`+obj.Digest.Hex()+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.Data)
}

// decode reads a JSON body into dst and validates it, writing the error response itself.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_json", "failed to decode request", nil)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, credential.KindValidation.String(),
			"request validation failed", validationDetails(err))
		return false
	}
	return true
}

func (h *Handler) addressPath(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := strings.TrimSpace(mux.Vars(r)["address"])
	addr, ok := parseAddress(raw)
	if !ok {
		apicommon.WriteError(w, r, http.StatusBadRequest, credential.KindValidation.String(), "bad address", nil)
		return common.Address{}, false
	}
	return addr, true
}

func (h *Handler) addressQuery(w http.ResponseWriter, r *http.Request, key string, required bool) (common.Address, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" && !required {
		return common.Address{}, true
	}
	if raw == "" {
		apicommon.WriteError(w, r, http.StatusBadRequest, credential.KindValidation.String(),
			"query parameter "+key+" is required", nil)
		return common.Address{}, false
	}
	addr, ok := parseAddress(raw)
	if !ok {
		apicommon.WriteError(w, r, http.StatusBadRequest, credential.KindValidation.String(),
			"query parameter "+key+" is not an address", nil)
		return common.Address{}, false
	}
	return addr, true
}
