package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const carrierIDKey = "carrier_id"

// CarrierHeader is the header every request must carry. All data access is
// scoped to this carrier; a request can never see another tenant's rows.
const CarrierHeader = "X-Carrier-ID"

// CarrierScope extracts and validates the carrier ID header, aborting with
// 400 when it is missing or malformed.
func CarrierScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(CarrierHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing " + CarrierHeader + " header"})
			return
		}

		carrierID, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + CarrierHeader + " header"})
			return
		}

		c.Set(carrierIDKey, carrierID)
		c.Next()
	}
}

// CarrierID returns the carrier scope set by CarrierScope.
func CarrierID(c *gin.Context) uuid.UUID {
	id, _ := c.Get(carrierIDKey)
	carrierID, _ := id.(uuid.UUID)
	return carrierID
}
