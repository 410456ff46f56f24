package application

import (
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeService struct{ name string }

type fakeController struct{ key string }

func (c *fakeController) Register(r *mux.Router) {
	r.HandleFunc(c.key, func(w http.ResponseWriter, r *http.Request) {})
}

func (c *fakeController) Key() string { return c.key }

type fakeModule struct{ registered bool }

func (m *fakeModule) Name() string { return "fake" }

func (m *fakeModule) Register(app Application) error {
	m.registered = true
	app.RegisterServices(&fakeService{name: "svc"})
	app.RegisterControllers(&fakeController{key: "/b"}, &fakeController{key: "/a"})
	return nil
}

func TestApplication_ServiceRegistry(t *testing.T) {
	app := New(&ApplicationOptions{Logger: logrus.New()})
	require.NotNil(t, app.EventPublisher())

	module := &fakeModule{}
	require.NoError(t, Load(app, module))
	require.True(t, module.registered)

	svc, ok := app.Service(fakeService{}).(*fakeService)
	require.True(t, ok)
	require.Equal(t, "svc", svc.name)

	controllers := app.Controllers()
	require.Len(t, controllers, 2)
	require.Equal(t, "/a", controllers[0].Key())
	require.Equal(t, "/b", controllers[1].Key())

	require.Panics(t, func() { app.Service(fakeController{}) })
}
