package failure

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOfFollowsWrapping(t *testing.T) {
	base := Wrap(errors.New("dial tcp: timeout"), UploadFailed, "We couldn't save your label photo.")
	wrapped := errors.Wrap(base, "commit")

	assert.Equal(t, UploadFailed, KindOf(wrapped))
	assert.True(t, Is(wrapped, UploadFailed))
	assert.True(t, errors.Is(wrapped, New(UploadFailed, "")))
	assert.False(t, errors.Is(wrapped, New(CartUserError, "")))
	assert.Equal(t, "We couldn't save your label photo.", UserMessage(wrapped))
}

func TestWrapNilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, UploadFailed, "x"))
}

func TestUnclassifiedErrors(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, Unknown, KindOf(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
	assert.NotEmpty(t, UserMessage(err))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		InvalidAddress:     http.StatusBadRequest,
		StepNotReady:       http.StatusBadRequest,
		SessionNotFound:    http.StatusNotFound,
		OperationInFlight:  http.StatusConflict,
		CartUserError:      http.StatusUnprocessableEntity,
		CartTransportError: http.StatusBadGateway,
		CheckoutURLMissing: http.StatusBadGateway,
		NoRatesAvailable:   http.StatusBadGateway,
	}
	for kind, status := range cases {
		assert.Equal(t, status, HTTPStatus(New(kind, "x")), kind.String())
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Wrap(errors.New("503"), CartTransportError, "checkout unavailable")
	assert.Equal(t, "cart_transport_error: checkout unavailable: 503", err.Error())
	assert.Equal(t, "invalid_input: missing email", New(InvalidInput, "missing email").Error())
}
