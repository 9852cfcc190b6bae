package cache

import "fmt"

func ResultsKey(jobID string) string {
	return fmt.Sprintf("results:%s", jobID)
}

func RateLimitKey(bucket string) string {
	return fmt.Sprintf("ratelimit:%s", bucket)
}
