package logger

import "github.com/rs/zerolog"

type zlog struct {
	z zerolog.Logger
}

func (l *zlog) Debugf(format string, args ...any) { l.z.Debug().Msgf(format, args...) }

func (l *zlog) Debugw(msg string, fields map[string]any) { l.z.Debug().Fields(fields).Msg(msg) }

func (l *zlog) Infof(format string, args ...any) { l.z.Info().Msgf(format, args...) }

func (l *zlog) Warnf(format string, args ...any) { l.z.Warn().Msgf(format, args...) }

func (l *zlog) Errorf(format string, args ...any) { l.z.Error().Msgf(format, args...) }

func (l *zlog) With(fields map[string]any) Logger {
	return &zlog{z: l.z.With().Fields(fields).Logger()}
}
