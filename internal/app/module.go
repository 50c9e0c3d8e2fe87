package app

import (
	"time"

	"github.com/inkwell/paywall/internal/app/api/server"
	"github.com/inkwell/paywall/internal/app/service/checkout"
	"github.com/inkwell/paywall/internal/app/service/dispatcher"
	"github.com/inkwell/paywall/internal/app/service/entitlement"
	eventhandler "github.com/inkwell/paywall/internal/app/service/event_handler"
	eventlog "github.com/inkwell/paywall/internal/app/service/event_log"
	"github.com/inkwell/paywall/internal/app/service/gate"
	"github.com/inkwell/paywall/internal/app/service/normalizer"
	"github.com/inkwell/paywall/internal/app/service/reconciler"
	"github.com/inkwell/paywall/internal/app/service/verifier"
	"github.com/inkwell/paywall/internal/platform/db"
	stripepf "github.com/inkwell/paywall/internal/platform/stripe"
	"github.com/inkwell/paywall/pkg/config"
	"github.com/inkwell/paywall/pkg/logger"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	stripepf.Module,
	server.Module,
	entitlement.Module,
	normalizer.Module,
	reconciler.Module,
	eventlog.Module,
	eventhandler.Module,
	dispatcher.Module,
	verifier.Module,
	checkout.Module,
	gate.Module,
)
