package config

// S3Config points image storage at an S3 bucket. Endpoint is optional and
// only needed for S3-compatible services.
type S3Config struct {
	BucketName string `yaml:"bucketName" env:"AWS_S3_BUCKET_NAME"`
	Region     string `yaml:"region" env:"AWS_REGION"`
	Endpoint   string `yaml:"endpoint" env:"AWS_ENDPOINT"`
	AccessKey  string `yaml:"accessKey" env:"AWS_ACCESS_KEY"`
	SecretKey  string `yaml:"secretKey" env:"AWS_SECRET_KEY"`
}
