package channelhub

import "errors"

var (
	errMissingHooks              = errors.New("channelhub: NewChannel requires non-nil ClientHooks")
	errMissingMigrateDataHandler = errors.New("channelhub: migration flags request data transfer but hooks do not implement MigrateDataHandler")
	errConnectRefused            = errors.New("channelhub: channel has no custom connect callback and is not the main channel")
)
