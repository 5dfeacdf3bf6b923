package meli

import (
	"context"
	"errors"
	"fmt"
	"time"

	applog "biciadmin/internal/log"
)

// BatchSuccess and BatchFailure are the per-product entries of a batch run.
type BatchSuccess struct {
	ProductID   int    `json:"productId"`
	ProductName string `json:"productName"`
	MlItemID    string `json:"mlItemId"`
	Permalink   string `json:"permalink"`
}

type BatchFailure struct {
	ProductID      int    `json:"productId"`
	ProductName    string `json:"productName,omitempty"`
	Error          string `json:"error"`
	MlErrorCode    any    `json:"mlErrorCode,omitempty"`
	MlErrorDetails any    `json:"mlErrorDetails,omitempty"`
	RequestPayload any    `json:"requestPayload,omitempty"`
}

// BatchResult is returned only after every id has been processed.
type BatchResult struct {
	Successful []BatchSuccess `json:"successful"`
	Failed     []BatchFailure `json:"failed"`
	Total      int            `json:"total"`
}

// Orchestrator runs the submitter over many products sequentially. The
// inter-item delay respects marketplace rate limits; the sleep function is
// injected so tests run with zero pacing.
type Orchestrator struct {
	Submitter *Submitter
	Products  ProductStore
	Delay     time.Duration
	Sleep     func(time.Duration)
}

func NewOrchestrator(submitter *Submitter, products ProductStore) *Orchestrator {
	return &Orchestrator{
		Submitter: submitter,
		Products:  products,
		Delay:     time.Second,
		Sleep:     time.Sleep,
	}
}

// Run submits each product independently: one failure is recorded and the
// loop continues, so the aggregate always covers every requested id.
func (o *Orchestrator) Run(ctx context.Context, productIDs []int) BatchResult {
	result := BatchResult{
		Successful: []BatchSuccess{},
		Failed:     []BatchFailure{},
		Total:      len(productIDs),
	}

	for _, id := range productIDs {
		product, err := o.Products.Get(id)
		if err != nil || product == nil {
			result.Failed = append(result.Failed, BatchFailure{
				ProductID: id, Error: "Producto no encontrado",
			})
			continue
		}

		cfg := product.MercadoLibreConfig
		if cfg == nil || !cfg.Configured {
			result.Failed = append(result.Failed, BatchFailure{
				ProductID: id, ProductName: product.Name.Es,
				Error: "Producto no configurado para MercadoLibre",
			})
			continue
		}
		if cfg.Migrated {
			result.Failed = append(result.Failed, BatchFailure{
				ProductID: id, ProductName: product.Name.Es,
				Error: "Producto ya migrado",
			})
			continue
		}

		res, err := o.Submitter.Submit(ctx, product)
		if err != nil {
			result.Failed = append(result.Failed, failureFrom(id, product.Name.Es, err))
			continue
		}

		applog.Info(nil, "ml.batch.migrated", map[string]any{"product": id, "item": res.ItemID})
		result.Successful = append(result.Successful, BatchSuccess{
			ProductID: id, ProductName: product.Name.Es,
			MlItemID: res.ItemID, Permalink: res.Permalink,
		})

		o.Sleep(o.Delay)
	}

	return result
}

func failureFrom(id int, name string, err error) BatchFailure {
	var rejected *ListingRejectedError
	if errors.As(err, &rejected) {
		return BatchFailure{
			ProductID:      id,
			ProductName:    name,
			Error:          fmt.Sprintf("Error de MercadoLibre: %s", rejected.Message),
			MlErrorCode:    rejected.Code,
			MlErrorDetails: rejected.Details,
			RequestPayload: rejected.Payload,
		}
	}
	return BatchFailure{ProductID: id, ProductName: name, Error: err.Error()}
}
