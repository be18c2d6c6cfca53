package api

import (
	"io"
	"net/http"

	"github.com/marmos91/transferd/pkg/download"
)

type downloadInitRequest struct {
	Key            string   `json:"key"`
	AccessPassword hexBytes `json:"access_password"`
}

type downloadInitResponse struct {
	Nonce       hexBytes `json:"nonce"`
	Size        int64    `json:"size"`
	DownloadKey string   `json:"download_key"`
	ConfirmKey  string   `json:"confirm_key"`
}

type downloadBodyRequest struct {
	Key            string   `json:"key"`
	AccessPassword hexBytes `json:"access_password"`
}

type downloadConfirmRequest struct {
	Key  string   `json:"key"`
	Hash hexBytes `json:"hash"`
}

type downloadConfirmResponse struct {
	FileNameHash hexBytes `json:"file_name_hash"`
}

// downloadHandler serves the `/api/download*` endpoints.
type downloadHandler struct {
	service *download.Service
}

func (h *downloadHandler) init(w http.ResponseWriter, r *http.Request) {
	var req downloadInitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Init(r.Context(), req.Key, req.AccessPassword)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, downloadInitResponse{
		Nonce:       result.Nonce,
		Size:        result.Size,
		DownloadKey: result.ContentKey,
		ConfirmKey:  result.ConfirmKey,
	})
}

func (h *downloadHandler) body(w http.ResponseWriter, r *http.Request) {
	var req downloadBodyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Body(r.Context(), req.Key, req.AccessPassword)
	if err != nil {
		writeError(w, err)
		return
	}
	defer result.File.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, result.File)
}

func (h *downloadHandler) confirm(w http.ResponseWriter, r *http.Request) {
	var req downloadConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	fileNameToken, err := h.service.Confirm(r.Context(), req.Key, req.Hash)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, downloadConfirmResponse{FileNameHash: fileNameToken})
}
