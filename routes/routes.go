package routes

import (
	"net/http"

	"festa/checkin"
	"festa/db"
	"festa/live"
	"festa/middleware"
	"festa/passes"
	"festa/ratelim"
	"festa/registration"

	"github.com/julienschmidt/httprouter"
)

func AddRegistrationRoutes(router *httprouter.Router, store db.Store, rl *ratelim.RateLimiter) {
	api := registration.NewAPI(store)

	router.POST("/api/calendar/:codeId/register", rl.Limit(ratelim.RegisterPolicy, api.Register))
	router.DELETE("/api/calendar/:codeId/register/:cellId", rl.Limit(ratelim.RegisterPolicy, api.Unregister))
	router.PATCH("/api/calendar/:codeId/registrations/:registrationId", middleware.Authenticate(api.AdminEdit))
	router.GET("/api/calendar/:codeId/day/:boothDate", api.DayAvailability)
	router.POST("/api/calendar/:codeId/avatar", rl.Limit(ratelim.RegisterPolicy, api.UploadAvatar))
}

func AddCheckinRoutes(router *httprouter.Router, store db.Store, rl *ratelim.RateLimiter) {
	api := checkin.NewAPI(store)

	router.POST("/api/calendar/:codeId/checkin", rl.Limit(ratelim.CheckinPolicy, middleware.Authenticate(api.Checkin)))
}

func AddPassRoutes(router *httprouter.Router, store db.Store) {
	api := passes.NewAPI(store)

	router.GET("/api/calendar/:codeId/passes/:registrationId/qr.png", api.QRImage)
	router.GET("/api/calendar/:codeId/passes/:registrationId/pass.pdf", api.PassPDF)
}

func AddLiveRoutes(router *httprouter.Router) {
	router.GET("/ws/calendar/:codeId/:boothDate", live.HandleWS)
}

func AddStaticRoutes(router *httprouter.Router) {
	router.ServeFiles("/static/avatars/*filepath", http.Dir("static/avatars"))
}
