package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tempinbox/backend/internal/monitoring"
)

// HTTPMetrics HTTP 指标中间件
//
// 按路由模板而非原始路径统计，避免收件箱 ID 造成标签基数膨胀。
func HTTPMetrics(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordHTTPRequest(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}
