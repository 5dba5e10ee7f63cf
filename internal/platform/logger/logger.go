package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds a development logger outside production so local output stays readable.
func New(production bool) (*zap.Logger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if production {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, fmt.Errorf("init logger failed: %w", err)
	}
	return l, nil
}
