package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/yourorg/dicom-import/internal/api"
	"github.com/yourorg/dicom-import/internal/config"
	"github.com/yourorg/dicom-import/internal/imaging"
	"github.com/yourorg/dicom-import/internal/organize"
	"github.com/yourorg/dicom-import/internal/storage"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	ctx := context.Background()
	store, err := storage.NewS3(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize S3 client: %v", err)
	}
	img, err := imaging.New(ctx, cfg.DatastoreID, zl)
	if err != nil {
		log.Fatalf("Failed to initialize HealthImaging client: %v", err)
	}
	org := organize.New(store, zl)

	// Initialize Gin
	r := gin.Default()
	r.MaxMultipartMemory = 8 << 20 // 8MB

	// CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// Initialize Temporal client
	temporalClient, err := client.Dial(client.Options{
		HostPort:  getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		Namespace: getEnv("TEMPORAL_NAMESPACE", "default"),
	})
	if err != nil {
		log.Printf("Warning: Failed to connect to Temporal: %v", err)
		// Continue without Temporal for now
	}
	if temporalClient != nil {
		defer temporalClient.Close()
	}

	// API routes
	apiV1 := r.Group("/api/v1")
	{
		handler := api.NewHandler(org, img, cfg)
		uploadHandler := api.NewUploadHandler(store, cfg)

		// Organized structure routes
		apiV1.GET("/structure", handler.GetStructure)

		// Image set routes
		apiV1.GET("/imagesets", handler.SearchImageSets)
		apiV1.GET("/imagesets/:id/metadata", handler.GetImageSetMetadata)
		apiV1.GET("/imagesets/:id/frames/:frameId", handler.GetImageFrame)
		apiV1.DELETE("/imagesets/:id", handler.DeleteImageSet)

		// Upload routes
		apiV1.POST("/upload", uploadHandler.UploadFile)

		// Workflow routes (only if Temporal is available)
		if temporalClient != nil {
			workflowHandler := api.NewWorkflowHandler(temporalClient, cfg, getEnv("TEMPORAL_TASK_QUEUE", "dicom-import"))
			apiV1.POST("/workflows/import", workflowHandler.StartImportWorkflow)
			apiV1.GET("/workflows/:id/status", workflowHandler.GetWorkflowStatus)
		}
	}

	// Start server
	port := getEnv("PORT", "8080")
	log.Printf("Server starting on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
