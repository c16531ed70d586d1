package logging

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

// UseLoggingInterface routes fx's own events to the Interface provided in
// the container. Wiring events go to DEBUG so a CLI run stays quiet; failures
// are always ERROR.
var UseLoggingInterface fx.Option = fx.WithLogger(
	func(logger Interface) fxevent.Logger {
		return fxLogger{logger.WithField("component", "fx")}
	},
)

type fxLogger struct {
	log Interface
}

// LogEvent implements fxevent.Logger.
func (f fxLogger) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuted:
		f.result("OnStart hook", e.Err, Fields{"callee": e.FunctionName, "caller": e.CallerName, "runtime": e.Runtime.String()})
	case *fxevent.OnStopExecuted:
		f.result("OnStop hook", e.Err, Fields{"callee": e.FunctionName, "caller": e.CallerName, "runtime": e.Runtime.String()})
	case *fxevent.Provided:
		if e.Err != nil {
			f.log.WithField("constructor", e.ConstructorName).WithError(e.Err).Error("Provide failed")
			return
		}
		for _, t := range e.OutputTypeNames {
			f.log.WithFields(Fields{"constructor": e.ConstructorName, "type": t}).Debug("Provided")
		}
	case *fxevent.Supplied:
		f.result("Supply", e.Err, Fields{"type": e.TypeName})
	case *fxevent.Invoked:
		f.result("Invoke", e.Err, Fields{"function": e.FunctionName})
	case *fxevent.Stopping:
		f.log.WithField("signal", e.Signal.String()).Info("Received signal, stopping")
	case *fxevent.Stopped:
		f.result("Stop", e.Err, nil)
	case *fxevent.RollingBack:
		f.log.WithError(e.StartErr).Error("Start failed, rolling back")
	case *fxevent.RolledBack:
		f.result("Rollback", e.Err, nil)
	case *fxevent.Started:
		f.result("Start", e.Err, nil)
	case *fxevent.LoggerInitialized:
		f.result("Logger initialization", e.Err, Fields{"function": e.ConstructorName})
	}
}

func (f fxLogger) result(what string, err error, fields Fields) {
	log := f.log
	if len(fields) > 0 {
		log = log.WithFields(fields)
	}
	if err != nil {
		log.WithError(err).Error(what + " failed")
		return
	}
	log.Debug(what + " succeeded")
}
