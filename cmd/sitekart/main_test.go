package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sitekart/sitekart/internal/app"
	_ "github.com/sitekart/sitekart/testing"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	require.NotPanics(t, main)
}
