package core

import "context"

const (
	PropertyKeySettings  = "settings"
	PropertyKeyProviders = "providers"
)

type PropertyStore interface {
	Get(ctx context.Context, key string, value any) error
	Set(ctx context.Context, key string, value any) error
}
