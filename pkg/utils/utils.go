package utils

import (
	"math/rand"
	"strings"
)

func ExistInArray[T comparable](arr []T, value T) bool {
	for _, v := range arr {
		if v == value {
			return true
		}
	}
	return false
}

func GetRandomInt(min, max int) int {
	return rand.Intn(max-min) + min
}

// SplitList splits comma separated list, dropping blanks
func SplitList(s string) []string {
	res := make([]string, 0)
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		res = append(res, item)
	}
	return res
}
