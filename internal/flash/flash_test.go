package flash

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_DrainClears(t *testing.T) {
	r := NewRecorder()
	assert.Equal(t, []Notice{}, r.Drain())

	Success(r, "saved")
	Error(r, "Connection error")

	assert.Equal(t, []Notice{
		{Level: LevelSuccess, Text: "saved"},
		{Level: LevelError, Text: "Connection error"},
	}, r.Drain())
	assert.Empty(t, r.Drain())
}

func TestRecorder_ConcurrentNotify(t *testing.T) {
	r := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Info(r, "x")
		}()
	}
	wg.Wait()
	assert.Len(t, r.Drain(), 50)
}

func TestLogged_ForwardsEverything(t *testing.T) {
	r := NewRecorder()
	s := Logged(context.Background(), "test", r)
	Error(s, "boom")
	Info(s, "fyi")
	assert.Len(t, r.Drain(), 2)
}

func TestCookies_SurviveRedirect(t *testing.T) {
	app := fiber.New()
	app.Get("/set", func(c *fiber.Ctx) error {
		SetCookie(c, Notice{Level: LevelError, Text: "Sign-in failed, try again"}, false)
		return c.Redirect("/read", fiber.StatusSeeOther)
	})
	app.Get("/read", func(c *fiber.Ctx) error {
		r := NewRecorder()
		ReadCookies(c, r)
		return c.JSON(r.Drain())
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/set", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "flash_error", cookies[0].Name)

	req := httptest.NewRequest(http.MethodGet, "/read", nil)
	req.AddCookie(cookies[0])
	resp, err = app.Test(req)
	require.NoError(t, err)

	var notices []Notice
	require.NoError(t, decodeJSON(resp, &notices))
	assert.Equal(t, []Notice{{Level: LevelError, Text: "Sign-in failed, try again"}}, notices)
}
