package kube

var KindURL = kindURL
