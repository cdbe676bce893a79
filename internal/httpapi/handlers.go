package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/lordkekz/KosmikAutoUpdate/internal/update"
)

// dateLayout is the wire format for version dates.
const dateLayout = "2006-01-02 15:04:05"

type channelsResponse struct {
	Channels map[string]string `json:"channels"`
}

type versionRequest struct {
	Channel   string `json:"channel,omitempty"`
	VersionID string `json:"version_id,omitempty"`
}

type versionResponse struct {
	VersionID    string                  `json:"version_id"`
	Date         string                  `json:"date"`
	ArchiveBytes int64                   `json:"archive_bytes"`
	ArchiveMD5   string                  `json:"archive_md5"`
	ArchiveURL   string                  `json:"archive_url"`
	Files        map[string]fileResponse `json:"files"`
}

type fileResponse struct {
	MD5          string `json:"md5"`
	Bytes        int64  `json:"bytes"`
	ArchiveBytes int64  `json:"archive_bytes"`
	FileURL      string `json:"file_url"`
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.manager.ListChannels()
	if err != nil {
		s.internalError(w, r, "listing channels", err)
		return
	}

	resp := channelsResponse{Channels: make(map[string]string, len(channels))}
	for _, ch := range channels {
		resp.Channels[ch.Name] = ch.VersionID
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	var req versionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	var (
		manifest *update.Manifest
		err      error
	)
	switch {
	case req.Channel != "":
		manifest, err = s.manager.GetChannelManifest(req.Channel)
	case req.VersionID != "":
		manifest, err = s.manager.GetVersionManifest(req.VersionID)
	default:
		http.Error(w, "must request either by version_id or channel", http.StatusBadRequest)
		return
	}

	switch {
	case errors.Is(err, update.ErrUnknownChannel):
		http.Error(w, "unknown channel", http.StatusNotFound)
		return
	case errors.Is(err, update.ErrUnknownVersion):
		http.Error(w, "unknown version_id", http.StatusNotFound)
		return
	case errors.Is(err, update.ErrBrokenChannel):
		s.log.Error("broken channel reference", "channel", req.Channel, "error", err)
		http.Error(w, "broken channel, please report to admin", http.StatusInternalServerError)
		return
	case err != nil:
		s.internalError(w, r, "resolving version", err)
		return
	}

	resp, err := s.buildVersionResponse(manifest, clientIP(r))
	if err != nil {
		s.internalError(w, r, "issuing download tokens", err)
		return
	}

	// Amortized token cleanup: every version lookup sweeps expired rows.
	if _, err := s.manager.PurgeExpiredTokens(); err != nil {
		s.log.Warn("token purge failed", "error", err)
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// buildVersionResponse decorates a manifest with token-gated download
// URLs bound to the requesting client.
func (s *Server) buildVersionResponse(manifest *update.Manifest, ip string) (*versionResponse, error) {
	archivePath := update.ArchiveKey(manifest.VersionID)
	archiveURL, err := s.signedURL(archivePath, ip)
	if err != nil {
		return nil, err
	}

	resp := &versionResponse{
		VersionID:    manifest.VersionID,
		Date:         manifest.Date.UTC().Format(dateLayout),
		ArchiveBytes: manifest.ArchiveBytes,
		ArchiveMD5:   manifest.ArchiveMD5,
		ArchiveURL:   archiveURL,
		Files:        make(map[string]fileResponse, len(manifest.Files)),
	}

	for path, f := range manifest.Files {
		fileURL, err := s.signedURL(update.BlobKey(f.MD5), ip)
		if err != nil {
			return nil, err
		}
		resp.Files[path] = fileResponse{
			MD5:          f.MD5,
			Bytes:        f.Bytes,
			ArchiveBytes: f.ArchiveBytes,
			FileURL:      fileURL,
		}
	}
	return resp, nil
}

// signedURL issues a token for (relativePath, ip) and returns the full
// download URL carrying it.
func (s *Server) signedURL(relativePath, ip string) (string, error) {
	token, err := s.manager.IssueDownloadToken(relativePath, ip)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s?token=%s", s.dlHost, relativePath, token.Token), nil
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	// The route patterns constrain {name} to a single path element, so
	// the relative path cannot escape the two known categories.
	relativePath := strings.TrimPrefix(r.URL.Path, "/dl/")
	ip := clientIP(r)

	ok, err := s.manager.CheckDownloadAccess(relativePath, ip, r.URL.Query().Get("token"))
	if err != nil {
		s.internalError(w, r, "checking download access", err)
		return
	}
	if !ok {
		http.Error(w, "invalid or expired token", http.StatusForbidden)
		return
	}

	blob, err := s.store.Open(relativePath)
	if err != nil {
		s.log.Warn("download blob missing", "path", relativePath, "error", err)
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	defer blob.Close()

	w.Header().Set("Content-Type", "application/zip")
	if size, err := s.store.Size(relativePath); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if _, err := io.Copy(w, blob); err != nil {
		s.log.Warn("download interrupted", "path", relativePath, "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("writing response failed", "error", err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.log.Error(msg, "path", r.URL.Path, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
