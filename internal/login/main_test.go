package login

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// the in-memory limiter's cache janitor lives for the process
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"))
}
