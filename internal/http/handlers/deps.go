package handlers

import (
	"github.com/jmoiron/sqlx"

	"biciadmin/internal/config"
	"biciadmin/internal/meli"
	"biciadmin/internal/repos"
	"biciadmin/internal/storage"
)

type Deps struct {
	ProductHandler    *ProductHandler
	CategoryHandler   *CategoryHandler
	UploadHandler     *UploadHandler
	MLAuthHandler     *MLAuthHandler
	MLCategoryHandler *MLCategoryHandler
	MigrateHandler    *MigrateHandler
}

func NewDeps(db *sqlx.DB, cfg config.Config, uploads *storage.Uploads) *Deps {
	productRepo := repos.NewProductRepo(db)
	categoryRepo := repos.NewCategoryRepo(db)
	credRepo := repos.NewCredentialRepo(db)

	tokens := meli.NewTokenStore(meli.Config{
		AppID:       cfg.MLAppID,
		SecretKey:   cfg.MLSecretKey,
		RedirectURI: cfg.MLRedirectURI,
	}, credRepo)
	api := meli.NewClient(tokens, "")
	resolver := meli.NewResolver(api)
	mapper := meli.NewAttributeMapper(api)
	pictures := meli.NewPictureUploader(api, uploads)
	submitter := meli.NewSubmitter(api, mapper, pictures, productRepo)
	batch := meli.NewOrchestrator(submitter, productRepo)

	return &Deps{
		ProductHandler:    &ProductHandler{Products: productRepo, Uploads: uploads},
		CategoryHandler:   &CategoryHandler{Categories: categoryRepo},
		UploadHandler:     &UploadHandler{Uploads: uploads},
		MLAuthHandler:     &MLAuthHandler{Tokens: tokens, API: api},
		MLCategoryHandler: &MLCategoryHandler{Resolver: resolver},
		MigrateHandler:    &MigrateHandler{Products: productRepo, Tokens: tokens, Submitter: submitter, Batch: batch},
	}
}
