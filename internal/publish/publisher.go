package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/strawberry/sitebuilder-go/internal/audit"
	apperrors "github.com/strawberry/sitebuilder-go/internal/errors"
	"github.com/strawberry/sitebuilder-go/internal/model"
)

const indexFile = "index.html"

// SiteStore is the part of repository.WebsiteRepository publishing needs.
type SiteStore interface {
	FindByFileName(ctx context.Context, userID, fileName string) (*model.Website, error)
	FindByName(ctx context.Context, userID, name string) (*model.Website, error)
	Save(ctx context.Context, params model.SaveWebsiteParams) (*model.Website, error)
	UpdateByFileName(ctx context.Context, params model.SaveWebsiteParams) (bool, error)
	DeleteByName(ctx context.Context, userID, name string) (int64, error)
}

type Ledger interface {
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	Charge(ctx context.Context, userID string, cost decimal.Decimal, reason string) (decimal.Decimal, error)
}

// DocumentSink receives the published document of a chat; *chat.Registry implements it.
type DocumentSink interface {
	SetDocument(userID, hash, html string) bool
}

type Prices struct {
	Publish   decimal.Decimal
	Republish decimal.Decimal
	ImageSave decimal.Decimal
}

type PublisherOptions struct {
	// SitesDir holds one folder per site and is served at URLPrefix.
	SitesDir    string
	URLPrefix   string
	BaseURL     string
	RechargeURL string
	Prices      Prices
}

type Request struct {
	UserID    string
	Name      string
	HTML      string
	Republish bool
	ChatHash  string
}

type Outcome struct {
	URL           string          `json:"url"`
	Republish     bool            `json:"republish"`
	ImagesSaved   int             `json:"images_saved"`
	ImagesCharged int             `json:"images_charged"`
	Charged       decimal.Decimal `json:"charged"`
	Balance       decimal.Decimal `json:"balance"`
}

type Publisher struct {
	opts      PublisherOptions
	sites     SiteStore
	ledger    Ledger
	localizer *Localizer
	docs      DocumentSink

	claimMu sync.Mutex
}

func NewPublisher(opts PublisherOptions, sites SiteStore, ledger Ledger, localizer *Localizer, docs DocumentSink) *Publisher {
	opts.URLPrefix = strings.TrimSuffix(opts.URLPrefix, "/")
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	return &Publisher{opts: opts, sites: sites, ledger: ledger, localizer: localizer, docs: docs}
}

// Publish writes a site. Every rejection happens before the charge; once
// charged, a failure while localizing or writing is not refunded.
func (p *Publisher) Publish(ctx context.Context, req Request) (*Outcome, error) {
	if strings.TrimSpace(req.HTML) == "" {
		return nil, apperrors.MissingRequired("html_content")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperrors.MissingRequired("website_name")
	}

	folder := Sanitize(req.Name)
	name := req.Name
	fee := p.opts.Prices.Publish
	reason := "publish"
	claimed := false
	if req.Republish {
		site, err := p.ownedSite(ctx, req.UserID, folder+"/"+indexFile, req.Name)
		if err != nil {
			return nil, err
		}
		if site == nil {
			return nil, apperrors.Forbidden("You can only republish websites you own")
		}
		fee, reason, name = p.opts.Prices.Republish, "republish", site.Name
		if strings.Contains(site.FileName, "/") {
			folder = site.Folder()
		} else {
			// single-file sites move into a folder of their own
			if err := p.claimFolder(folder); err != nil {
				return nil, err
			}
			claimed = true
		}
	} else {
		if err := p.claimFolder(folder); err != nil {
			return nil, err
		}
		claimed = true
	}
	siteDir := filepath.Join(p.opts.SitesDir, folder)
	prefix := p.opts.URLPrefix + "/" + folder
	fileName := folder + "/" + indexFile

	images := p.localizer.Estimate(req.HTML, siteDir, prefix)
	total := fee.Add(p.opts.Prices.ImageSave.Mul(decimal.NewFromInt(int64(images))))

	balance, err := p.chargeFor(ctx, req.UserID, total, reason)
	if err != nil {
		if claimed {
			p.releaseFolder(folder)
		}
		return nil, err
	}

	res, err := p.localizer.Localize(ctx, req.HTML, siteDir, prefix)
	if err != nil {
		log.Error().Err(err).Str("userId", req.UserID).Str("site", folder).Str("charged", total.String()).
			Msg("Localization failed after charge")
		return nil, apperrors.Internal("Failed to prepare website files").WithCause(err)
	}
	if err := os.WriteFile(filepath.Join(siteDir, indexFile), []byte(res.HTML), 0o644); err != nil {
		log.Error().Err(err).Str("userId", req.UserID).Str("site", folder).Str("charged", total.String()).
			Msg("Writing index failed after charge")
		return nil, apperrors.Internal("Failed to write website").WithCause(err)
	}

	relURL := prefix + "/" + indexFile
	params := model.SaveWebsiteParams{UserID: req.UserID, Name: name, FileName: fileName, URL: relURL}
	if err := p.record(ctx, params, req.Republish); err != nil {
		return nil, apperrors.Database(err)
	}

	if req.ChatHash != "" && p.docs != nil {
		p.docs.SetDocument(req.UserID, req.ChatHash, res.HTML)
	}

	audit.Log(ctx, audit.Event{
		Type:   audit.EventSitePublish,
		UserID: req.UserID,
		Details: map[string]interface{}{
			"site":           folder,
			"republish":      req.Republish,
			"charged":        total,
			"images_charged": images,
			"images_saved":   res.NewImages,
		},
	})

	return &Outcome{
		URL:           p.opts.BaseURL + relURL,
		Republish:     req.Republish,
		ImagesSaved:   res.NewImages,
		ImagesCharged: images,
		Charged:       total,
		Balance:       balance,
	}, nil
}

func (p *Publisher) chargeFor(ctx context.Context, userID string, total decimal.Decimal, reason string) (decimal.Decimal, error) {
	balance, err := p.ledger.Balance(ctx, userID)
	if err != nil {
		return decimal.Zero, apperrors.Database(err)
	}
	if balance.LessThan(total) {
		return decimal.Zero, apperrors.InsufficientBalance(total, balance, p.opts.RechargeURL)
	}
	balance, err = p.ledger.Charge(ctx, userID, total, reason)
	if err != nil {
		return decimal.Zero, apperrors.Database(err)
	}
	return balance, nil
}

func (p *Publisher) record(ctx context.Context, params model.SaveWebsiteParams, republish bool) error {
	if republish {
		updated, err := p.sites.UpdateByFileName(ctx, params)
		if err == nil && updated {
			return nil
		}
		if err != nil {
			log.Warn().Err(err).Str("fileName", params.FileName).Msg("Republish update failed, saving instead")
		}
	}
	_, err := p.sites.Save(ctx, params)
	return err
}

func (p *Publisher) ownedSite(ctx context.Context, userID, fileName, name string) (*model.Website, error) {
	site, err := p.sites.FindByFileName(ctx, userID, fileName)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if site != nil {
		return site, nil
	}
	site, err = p.sites.FindByName(ctx, userID, name)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return site, nil
}

// claimFolder creates the folder of a new site. The check and the exclusive
// mkdir run under claimMu, so of two concurrent claims on one name exactly
// one succeeds.
func (p *Publisher) claimFolder(folder string) error {
	p.claimMu.Lock()
	defer p.claimMu.Unlock()

	taken, err := p.folderTaken(folder)
	if err != nil {
		return apperrors.Internal("Failed to read websites folder").WithCause(err)
	}
	conflict := apperrors.AlreadyExists("website").WithDetails(map[string]string{"sanitized_name": folder})
	if taken {
		return conflict
	}
	if err := os.MkdirAll(p.opts.SitesDir, 0o755); err != nil {
		return apperrors.Internal("Failed to create websites folder").WithCause(err)
	}
	if err := os.Mkdir(filepath.Join(p.opts.SitesDir, folder), 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return conflict
		}
		return apperrors.Internal("Failed to create website folder").WithCause(err)
	}
	return nil
}

// releaseFolder drops a claimed folder that never received files.
func (p *Publisher) releaseFolder(folder string) {
	if err := os.Remove(filepath.Join(p.opts.SitesDir, folder)); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("site", folder).Msg("Failed to release website folder")
	}
}

// folderTaken compares case-insensitively against every existing site folder.
func (p *Publisher) folderTaken(folder string) (bool, error) {
	entries, err := os.ReadDir(p.opts.SitesDir)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.IsDir() && strings.EqualFold(e.Name(), folder) {
			return true, nil
		}
	}
	return false, nil
}

// SiteFolder returns the folder of a site the user owns, looked up by display
// or folder name.
func (p *Publisher) SiteFolder(ctx context.Context, userID, name string) (string, bool, error) {
	if strings.TrimSpace(name) == "" {
		return "", false, nil
	}
	folder := Sanitize(name)
	site, err := p.ownedSite(ctx, userID, folder+"/"+indexFile, name)
	if err != nil || site == nil {
		return "", false, err
	}
	return filepath.Join(p.opts.SitesDir, site.Folder()), true, nil
}

// Delete removes a site's files and its record.
func (p *Publisher) Delete(ctx context.Context, userID, name string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.MissingRequired("name")
	}
	site, err := p.sites.FindByName(ctx, userID, name)
	if err != nil {
		return apperrors.Database(err)
	}
	if site == nil {
		return apperrors.NotFound("website")
	}

	if err := p.removeFiles(site); err != nil {
		log.Error().Err(err).Str("fileName", site.FileName).Msg("Failed to remove website files")
	}

	n, err := p.sites.DeleteByName(ctx, userID, name)
	if err != nil {
		return apperrors.Database(err)
	}
	if n == 0 {
		return apperrors.NotFound("website")
	}

	audit.Log(ctx, audit.Event{
		Type:    audit.EventSiteDelete,
		UserID:  userID,
		Details: map[string]interface{}{"site": site.Folder()},
	})
	return nil
}

func (p *Publisher) removeFiles(site *model.Website) error {
	folder := site.Folder()
	if folder == "" || folder != Sanitize(folder) {
		return fmt.Errorf("refusing to remove %q", site.FileName)
	}
	if !strings.Contains(site.FileName, "/") {
		// single-file sites from before per-site folders
		err := os.Remove(filepath.Join(p.opts.SitesDir, site.FileName))
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.RemoveAll(filepath.Join(p.opts.SitesDir, folder))
}
