package config

// MinioConfig points image storage at a MinIO deployment.
type MinioConfig struct {
	AccessKey  string `yaml:"accessKey" env:"MINIO_ACCESS_KEY"`
	SecretKey  string `yaml:"secretKey" env:"MINIO_SECRET_KEY"`
	Endpoint   string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
	UseSSL     bool   `yaml:"useSsl" env:"MINIO_USE_SSL"`
	Region     string `yaml:"region" env:"MINIO_REGION"`
	BucketName string `yaml:"bucketName" env:"MINIO_BUCKET_NAME"`
}
