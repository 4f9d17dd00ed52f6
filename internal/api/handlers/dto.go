// dto.go — JSON-представления ответов API (camelCase, термины на нидерландском).
package handlers

import (
	"time"

	"github.com/HansKurvers/Ouderschaps-api-sub002/internal/domain/model"
)

// actorResponse — кто выполнил действие.
type actorResponse struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
	Naam string `json:"naam,omitempty"`
}

func mapActor(a model.Actor, name string) *actorResponse {
	if a.IsZero() {
		return nil
	}
	return &actorResponse{Type: string(a.Kind()), ID: a.ID(), Naam: name}
}

type userResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Naam  string `json:"naam"`
	Rol   string `json:"rol,omitempty"`
}

func mapUser(u *model.User, role string) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Naam: u.Name, Rol: role}
}

type categoryResponse struct {
	ID                  int64    `json:"id"`
	Naam                string   `json:"naam"`
	Omschrijving        *string  `json:"omschrijving,omitempty"`
	ToegestaneExtensies []string `json:"toegestaneExtensies"`
	MaxGrootteMB        int      `json:"maxGrootteMb"`
	SorteerVolgorde     int      `json:"sorteerVolgorde"`
}

func mapCategory(c *model.Category) categoryResponse {
	return categoryResponse{
		ID:                  c.ID,
		Naam:                c.Name,
		Omschrijving:        c.Description,
		ToegestaneExtensies: c.Extensions(),
		MaxGrootteMB:        c.MaxSizeMB,
		SorteerVolgorde:     c.SortOrder,
	}
}

type dossierResponse struct {
	ID            int64     `json:"id"`
	DossierNummer string    `json:"dossierNummer"`
	Status        string    `json:"status"`
	EigenaarID    int64     `json:"eigenaarId"`
	IsEigenaar    bool      `json:"isEigenaar"`
	AangemaaktOp  time.Time `json:"aangemaaktOp"`
	GewijzigdOp   time.Time `json:"gewijzigdOp"`
}

func mapDossier(d *model.Dossier, viewerID int64) dossierResponse {
	return dossierResponse{
		ID:            d.ID,
		DossierNummer: d.DossierNumber,
		Status:        d.Status,
		EigenaarID:    d.OwnerID,
		IsEigenaar:    d.OwnerID == viewerID,
		AangemaaktOp:  d.CreatedAt,
		GewijzigdOp:   d.UpdatedAt,
	}
}

type shareResponse struct {
	GebruikerID  int64     `json:"gebruikerId"`
	Email        string    `json:"email"`
	Naam         string    `json:"naam"`
	AangemaaktOp time.Time `json:"aangemaaktOp"`
}

func mapShare(s *model.DossierShare) shareResponse {
	return shareResponse{
		GebruikerID:  s.UserID,
		Email:        s.UserEmail,
		Naam:         s.UserName,
		AangemaaktOp: s.CreatedAt,
	}
}

type documentResponse struct {
	ID                    int64          `json:"id"`
	DossierID             int64          `json:"dossierId"`
	CategorieID           int64          `json:"categorieId"`
	CategorieNaam         string         `json:"categorieNaam,omitempty"`
	OrigineleBestandsnaam string         `json:"origineleBestandsnaam"`
	Bestandsgrootte       int64          `json:"bestandsgrootte"`
	MimeType              string         `json:"mimeType"`
	GeuploadDoor          *actorResponse `json:"geuploadDoor,omitempty"`
	AangemaaktOp          time.Time      `json:"aangemaaktOp"`
}

func mapDocument(d *model.Document) documentResponse {
	return documentResponse{
		ID:                    d.ID,
		DossierID:             d.DossierID,
		CategorieID:           d.CategoryID,
		OrigineleBestandsnaam: d.OriginalFilename,
		Bestandsgrootte:       d.Size,
		MimeType:              d.MimeType,
		GeuploadDoor:          mapActor(d.UploadedBy, ""),
		AangemaaktOp:          d.CreatedAt,
	}
}

func mapDocumentWithCategory(d *model.DocumentWithCategory) documentResponse {
	resp := mapDocument(&d.Document)
	resp.CategorieNaam = d.CategoryName
	resp.GeuploadDoor = mapActor(d.UploadedBy, d.UploaderName)
	return resp
}

type downloadResponse struct {
	DownloadURL  string    `json:"downloadUrl"`
	VerlooptOp   time.Time `json:"verlooptOp"`
	Bestandsnaam string    `json:"bestandsnaam"`
	MimeType     string    `json:"mimeType"`
}

type guestResponse struct {
	ID               int64      `json:"id"`
	DossierID        int64      `json:"dossierId"`
	Email            string     `json:"email"`
	Naam             *string    `json:"naam,omitempty"`
	Rechten          string     `json:"rechten"`
	Status           string     `json:"status"`
	VerlooptOp       time.Time  `json:"verlooptOp"`
	UitgenodigdOp    time.Time  `json:"uitgenodigdOp"`
	EersteToegangOp  *time.Time `json:"eersteToegangOp,omitempty"`
	LaatsteToegangOp *time.Time `json:"laatsteToegangOp,omitempty"`
	IngetrokkenOp    *time.Time `json:"ingetrokkenOp,omitempty"`
}

func mapGuest(g *model.Guest, now time.Time) guestResponse {
	return guestResponse{
		ID:               g.ID,
		DossierID:        g.DossierID,
		Email:            g.Email,
		Naam:             g.Name,
		Rechten:          string(g.Permission),
		Status:           g.Status(now),
		VerlooptOp:       g.ExpiresAt,
		UitgenodigdOp:    g.CreatedAt,
		EersteToegangOp:  g.FirstAccessAt,
		LaatsteToegangOp: g.LastAccessAt,
		IngetrokkenOp:    g.RevokedAt,
	}
}

// invitationResponse — приглашение с plaintext-токеном; токен показывается только здесь.
type invitationResponse struct {
	Gast        guestResponse `json:"gast"`
	Token       string        `json:"token"`
	ToegangsURL string        `json:"toegangsUrl"`
}

// guestSessionResponse — ответ GET /gast/sessie.
type guestSessionResponse struct {
	Authenticated bool             `json:"authenticated"`
	DossierID     int64            `json:"dossierId"`
	Gast          guestSessionInfo `json:"gast"`
	Rechten       string           `json:"rechten"`
	VerlooptOp    time.Time        `json:"verlooptOp"`
}

type guestSessionInfo struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Naam  string `json:"naam"`
}

type auditEntryResponse struct {
	ID           int64          `json:"id"`
	Actie        string         `json:"actie"`
	DocumentID   *int64         `json:"documentId,omitempty"`
	Actor        *actorResponse `json:"actor,omitempty"`
	IPAdres      string         `json:"ipAdres,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	AangemaaktOp time.Time      `json:"aangemaaktOp"`
}

func mapAuditEntry(e *model.AuditEntry) auditEntryResponse {
	return auditEntryResponse{
		ID:           e.ID,
		Actie:        string(e.Action),
		DocumentID:   e.DocumentID,
		Actor:        mapActor(e.Actor, ""),
		IPAdres:      e.IP,
		UserAgent:    e.UserAgent,
		Details:      e.Details,
		AangemaaktOp: e.CreatedAt,
	}
}

// listResponse — страница списка.
type listResponse[T any] struct {
	Items   []T  `json:"items"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}
