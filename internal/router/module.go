package router

import "github.com/gin-gonic/gin"

// Module is one bounded context's HTTP surface. Name shows up in the start-up
// log so a missing module is obvious.
type Module interface {
	Name() string
	Register(rg *gin.RouterGroup)
}
